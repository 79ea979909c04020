package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/faultline/faultline-go/chaoslib/toxiproxy"
	"github.com/faultline/faultline-go/pkg/clients"
	"github.com/faultline/faultline-go/pkg/environment"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/result"
	"github.com/faultline/faultline-go/pkg/runner"
	"github.com/faultline/faultline-go/pkg/scenarios"
	"github.com/faultline/faultline-go/pkg/telemetry"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

func main() {
	var scenarioName string
	var scenarioFile string
	var asJSON bool

	var run = &cobra.Command{
		Use:   "run [flags]",
		Short: "Execute a chaos scenario against the configured target",
		Args:  cobra.MaximumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenario, err := resolveScenario(scenarioName, scenarioFile)
			if err != nil {
				return err
			}
			return executeScenario(scenario, asJSON)
		},
	}
	run.Flags().StringVarP(&scenarioName, "scenario", "s", "", "name of a built-in scenario fixture")
	run.Flags().StringVarP(&scenarioFile, "file", "f", "", "path to a scenario yaml definition")
	run.Flags().BoolVar(&asJSON, "json", false, "print the full execution result as json")

	var list = &cobra.Command{
		Use:   "list",
		Short: "List the built-in scenario fixtures",
		Args:  cobra.MaximumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range scenarios.Names() {
				fmt.Println(name)
			}
		},
	}

	var proxies = &cobra.Command{
		Use:   "proxies",
		Short: "List the proxies registered on the fault-injection control surface",
		Args:  cobra.MaximumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			registered, err := controlClient().Proxies()
			if err != nil {
				return err
			}
			for name, proxy := range registered {
				fmt.Printf("%v\t%v -> %v\tenabled=%v\n", name, proxy.Listen, proxy.Upstream, proxy.Enabled)
			}
			return nil
		},
	}

	var createProxy = &cobra.Command{
		Use:   "create-proxy <name> <listen> <upstream>",
		Short: "Register a proxy on the fault-injection control surface",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return controlClient().CreateProxy(args[0], args[1], args[2])
		},
	}

	var rootCmd = &cobra.Command{Use: "faultline"}
	rootCmd.AddCommand(run, list, proxies, createProxy)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// controlClient builds just the fault-injection control client from the
// environment, skipping the rest of the engine wiring
func controlClient() *toxiproxy.Client {
	engineDetails := environment.EngineDetails{}
	environment.GetENV(&engineDetails)
	return toxiproxy.NewClient(engineDetails.ToxiproxyURL, engineDetails.ProbeTimeout)
}

func resolveScenario(name, file string) (types.ChaosScenario, error) {
	switch {
	case name != "" && file != "":
		return types.ChaosScenario{}, fmt.Errorf("--scenario and --file are mutually exclusive")
	case file != "":
		return scenarios.LoadFromFile(file)
	case name != "":
		return scenarios.Get(name)
	}
	return types.ChaosScenario{}, fmt.Errorf("one of --scenario or --file is required")
}

func executeScenario(scenario types.ChaosScenario, asJSON bool) error {
	engineDetails := environment.EngineDetails{}
	environment.GetENV(&engineDetails)

	clientSets := clients.ClientSets{}
	clientSets.GenerateClientSets(engineDetails)
	clientSets.Context = telemetry.GetTraceParentContext()

	if engineDetails.OTelEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(clientSets.Context, engineDetails.OTelEndpoint)
		if err != nil {
			log.Errorf("Unable to initialise the otel sdk, err: %v", err)
			return err
		}
		defer func() {
			if err := shutdown(clientSets.Context); err != nil {
				log.Errorf("error while shutting down the otel sdk, err: %v", err)
			}
		}()
	}

	r := runner.FromEngineDetails(engineDetails, clientSets)

	ctx, cancel := context.WithCancel(clientSets.Context)
	defer cancel()

	// lift any active fault before dying on an interrupt
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Warnf("received %v, aborting the scenario and cleaning up", sig)
		cancel()
		if err := r.Cleanup(); err != nil {
			log.Errorf("cleanup after %v failed, err: %v", sig, err)
		}
	}()
	defer signal.Stop(signals)

	execution := r.ExecuteScenario(ctx, scenario)

	if asJSON {
		encoded, err := json.MarshalIndent(execution, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
	} else {
		fmt.Print(result.Summary(execution))
	}

	if !execution.Success {
		return fmt.Errorf("scenario %v failed: %v", scenario.ID, execution.FailStep)
	}
	return nil
}
