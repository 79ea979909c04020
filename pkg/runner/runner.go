package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faultline/faultline-go/chaoslib/injector"
	"github.com/faultline/faultline-go/pkg/analyzer"
	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/clients"
	"github.com/faultline/faultline-go/pkg/environment"
	"github.com/faultline/faultline-go/pkg/events"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/monitor"
	"github.com/faultline/faultline-go/pkg/probe"
	"github.com/faultline/faultline-go/pkg/result"
	"github.com/faultline/faultline-go/pkg/telemetry"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/faultline/faultline-go/pkg/validator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errScenarioDuration = errors.New("scenario requires a positive duration")

// State names the runner's position in the per-run state machine
type State string

const (
	StateIdle       State = "Idle"
	StateInjecting  State = "Injecting"
	StateMonitoring State = "Monitoring"
	StateRemoving   State = "Removing"
	StateValidating State = "Validating"
	StateAnalyzing  State = "Analyzing"
	StateCompleted  State = "Completed"
	StateAborted    State = "Aborted"
)

// Settings tunes one runner, zero values fall back to sensible defaults
type Settings struct {
	MonitorInterval time.Duration
	TeardownGrace   time.Duration
	Validator       validator.Settings
	Analyzer        analyzer.Settings
	Metrics         *monitor.Metrics
}

func (s *Settings) applyDefaults() {
	if s.MonitorInterval <= 0 {
		s.MonitorInterval = time.Second
	}
	if s.TeardownGrace <= 0 {
		s.TeardownGrace = 30 * time.Second
	}
}

// Runner executes chaos scenarios against one target. Scenario execution is
// serialized per runner, the target and its fault-injection transport are
// single-writer. One runner owns one analyzer, history never crosses targets.
type Runner struct {
	clients  clients.ClientSets
	settings Settings
	injector *injector.Injector
	analyzer *analyzer.Analyzer

	runMu sync.Mutex

	stateMu       sync.Mutex
	state         State
	activeHandle  *injector.Handle
	activeMonitor *monitor.Monitor
}

func New(clientSets clients.ClientSets, settings Settings) *Runner {
	settings.applyDefaults()
	return &Runner{
		clients:  clientSets,
		settings: settings,
		injector: injector.New(clientSets),
		analyzer: analyzer.New(settings.Analyzer),
		state:    StateIdle,
	}
}

// FromEngineDetails builds a runner wired from the engine configuration
func FromEngineDetails(engineDetails environment.EngineDetails, clientSets clients.ClientSets) *Runner {
	return New(clientSets, Settings{
		MonitorInterval: engineDetails.MonitorInterval,
		TeardownGrace:   engineDetails.TeardownGrace,
		Validator: validator.Settings{
			ProbeInterval:      engineDetails.ProbeInterval,
			ProbeTimeout:       engineDetails.ProbeTimeout,
			ConsecutiveSuccess: engineDetails.ConsecutiveSuccess,
			SafetyMultiplier:   engineDetails.SafetyMultiplier,
			DegradedErrorRate:  engineDetails.DegradedErrorRate,
		},
		Analyzer: analyzer.Settings{
			OrganizationTarget: engineDetails.OrganizationTarget,
			IndustryStandard:   engineDetails.IndustryStandard,
		},
	})
}

// State returns the current position in the state machine
func (r *Runner) State() State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state
}

// Analyzer exposes the runner's rolling history, usable to prime it from a
// previous session
func (r *Runner) Analyzer() *analyzer.Analyzer {
	return r.analyzer
}

// ExecuteScenario runs one scenario end to end and always returns a report.
// Expected target-side failures never surface as errors, only engine-side
// ones do through the report's FailStep.
func (r *Runner) ExecuteScenario(ctx context.Context, scenario types.ChaosScenario) *types.ChaosExecutionResult {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	span := telemetry.StartTracing(&r.clients, "ExecuteChaosScenario")
	defer span.End()
	if span.SpanContext().IsValid() && r.clients.Process != nil {
		// let the process agent correlate its actions with this run's trace
		r.clients.Process.SetTraceParent(telemetry.GetMarshalledSpanFromContext(r.clients.Context))
	}

	recorder := events.NewRecorder()
	execution := &types.ChaosExecutionResult{
		RunID:      uuid.New().String(),
		ScenarioID: scenario.ID,
		StartTime:  time.Now(),
	}
	defer func() {
		execution.EndTime = time.Now()
		execution.Observations = recorder.Observations()
	}()

	log.InfoWithValues("[PreReq]: Executing chaos scenario", logrus.Fields{
		"Scenario": scenario.ID,
		"RunID":    execution.RunID,
		"Fault":    scenario.Fault.Type,
		"Duration": scenario.Duration,
	})

	if err := r.validateScenario(scenario); err != nil {
		log.Errorf("scenario %v rejected, err: %v", scenario.ID, err)
		execution.FailStep = result.ScenarioInvalid
		r.setState(StateAborted)
		return execution
	}
	recorder.Recordf(types.ObservationScenarioStarted, "scenario %v started", scenario.ID)

	if preCheck := probe.TriggerHTTPProbe(r.clients.Target.HTTP, r.clients.Target.HealthURL()); !preCheck.Success {
		log.Warnf("[PreReq]: Target unhealthy before injection (status: %v), results may not isolate the fault's impact", preCheck.StatusCode)
	}

	// hard deadline: the scenario window plus a bounded teardown grace
	runCtx, cancel := context.WithTimeout(ctx, scenario.Duration+r.settings.TeardownGrace)
	defer cancel()

	r.setState(StateInjecting)
	handle, err := r.injector.Inject(runCtx, scenario.Fault)
	if err != nil {
		rootCause, errorCode := cerrors.GetRootCauseAndErrorCode(err)
		log.Errorf("primary fault injection failed, err: %v", rootCause)
		recorder.Recordf(types.ObservationScenarioAborted, "primary fault injection failed: %v", rootCause)
		execution.FailStep = fmt.Sprintf("%s: %s (code: %s)", result.FaultInjectionFailed, rootCause, errorCode)
		r.setState(StateAborted)
		return execution
	}
	faultStart := handle.Result().StartTime
	recorder.RecordAt(faultStart, types.ObservationFaultInjected, string(scenario.Fault.Type)+" fault injected")

	mon := monitor.New(r.clients.Target, r.settings.MonitorInterval, r.settings.Metrics)
	val := validator.New(r.clients, r.settings.Validator)

	r.stateMu.Lock()
	r.state = StateMonitoring
	r.activeHandle = handle
	r.activeMonitor = mon
	r.stateMu.Unlock()

	mon.Start(runCtx)
	val.Observe(runCtx, scenario, faultStart)

	aborted := false
	select {
	case <-time.After(scenario.Duration):
	case <-runCtx.Done():
		aborted = true
	}

	r.setState(StateRemoving)
	removeErr := r.injector.Remove(handle)
	faultResult := handle.Result()
	execution.FaultInjection = &faultResult
	recorder.RecordAt(faultResult.EndTime, types.ObservationFaultRemoved, string(scenario.Fault.Type)+" fault removed")
	if removeErr != nil {
		log.Errorf("fault removal incomplete, err: %v", removeErr)
		execution.FailStep = result.FaultRemovalFailed
	}

	if aborted {
		log.WarnWithValues("[Chaos]: Scenario aborted", logrus.Fields{
			"Scenario": scenario.ID,
			"Reason":   runCtx.Err(),
		})
		recorder.Recordf(types.ObservationScenarioAborted, "scenario %v aborted before its window elapsed", scenario.ID)
		execution.SystemMetrics = mon.Stop()
		if execution.FailStep == "" {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				execution.FailStep = result.ScenarioTimedOut
			} else {
				execution.FailStep = result.ScenarioInterrupted
			}
		}
		r.clearActive()
		r.setState(StateAborted)
		return execution
	}

	r.setState(StateValidating)
	// recovery measurement gets the scenario's own safety window, the run
	// deadline only bounds the fault window and teardown
	valCtx, cancelValidation := context.WithTimeout(ctx, val.SafetyWindow(scenario)+r.settings.TeardownGrace)
	recovery := val.Validate(valCtx, scenario, faultResult)
	cancelValidation()
	execution.RecoveryValidation = recovery
	r.recordRecovery(recorder, scenario, faultStart, faultResult, recovery)

	r.setState(StateAnalyzing)
	recoveryEnd := faultResult.EndTime.Add(recovery.RecoveryTime)
	window := time.Since(execution.StartTime)
	analysis := r.analyzer.AnalyzeRecovery(faultStart, recoveryEnd, window, faultResult, recovery)
	execution.MTTRAnalysis = analysis
	recorder.Recordf(types.ObservationAnalysisCompleted, "mttr %v, ranking %v", analysis.MTTR, analysis.Benchmark.Ranking)

	execution.SystemMetrics = mon.Stop()
	execution.Success = faultResult.Success && recovery.Success && removeErr == nil
	if !recovery.Success && execution.FailStep == "" {
		execution.FailStep = recovery.FailStep
	}

	r.clearActive()
	r.setState(StateCompleted)

	log.InfoWithValues("[Confirmation]: Scenario finished", logrus.Fields{
		"Scenario": scenario.ID,
		"Success":  execution.Success,
		"MTTR":     analysis.MTTR,
	})
	return execution
}

// ExecuteAll runs the scenarios back to back, a failing scenario never stops
// the batch
func (r *Runner) ExecuteAll(ctx context.Context, scenarioList []types.ChaosScenario) []*types.ChaosExecutionResult {
	results := make([]*types.ChaosExecutionResult, 0, len(scenarioList))
	for _, scenario := range scenarioList {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.ExecuteScenario(ctx, scenario))
	}
	return results
}

// Cleanup forcibly removes any still-active fault and stops monitoring.
// Idempotent, safe to call from a signal handler while a scenario runs.
func (r *Runner) Cleanup() error {
	r.stateMu.Lock()
	handle := r.activeHandle
	mon := r.activeMonitor
	r.activeHandle = nil
	r.activeMonitor = nil
	r.stateMu.Unlock()

	if handle == nil && mon == nil {
		return nil
	}
	log.Warn("[Chaos]: Cleanup requested, removing any active fault")

	var removeErr error
	if handle != nil {
		removeErr = r.injector.Remove(handle)
		if removeErr != nil && r.clients.Toxiproxy != nil {
			// last resort: wipe the whole control surface
			if err := r.clients.Toxiproxy.ResetState(); err != nil {
				log.Errorf("control surface reset failed, err: %v", err)
			}
		}
	}
	if mon != nil {
		mon.Stop()
	}
	return removeErr
}

func (r *Runner) validateScenario(scenario types.ChaosScenario) error {
	if scenario.Duration <= 0 {
		return errScenarioDuration
	}
	return scenario.Fault.Validate()
}

func (r *Runner) setState(state State) {
	r.stateMu.Lock()
	r.state = state
	r.stateMu.Unlock()
}

func (r *Runner) clearActive() {
	r.stateMu.Lock()
	r.activeHandle = nil
	r.activeMonitor = nil
	r.stateMu.Unlock()
}

// recordRecovery turns the validation outcome into tagged observations
func (r *Runner) recordRecovery(recorder *events.Recorder, scenario types.ChaosScenario,
	faultStart time.Time, faultResult types.FaultInjectionResult, recovery *types.RecoveryValidationResult) {

	if recovery.DetectionTime > 0 {
		recorder.RecordAt(faultStart.Add(recovery.DetectionTime), types.ObservationFaultDetected,
			"failure detected "+recovery.DetectionTime.String()+" after injection")
	}
	for _, mechanism := range recovery.MechanismsActivated {
		recorder.Recordf(types.ObservationMechanismObserved, "%v activated", mechanism)
	}
	if recovery.FailStep != "" {
		recorder.Recordf(types.ObservationRecoveryTimeout, "scenario %v: %v", scenario.ID, recovery.FailStep)
		return
	}
	recorder.RecordAt(faultResult.EndTime.Add(recovery.RecoveryTime), types.ObservationRecoveryConfirmed,
		"service recovered "+recovery.RecoveryTime.String()+" after fault removal")
}
