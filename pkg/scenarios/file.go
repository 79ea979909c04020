package scenarios

import (
	"os"
	"time"

	"github.com/faultline/faultline-go/pkg/types"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// yaml schema with human-readable durations ("30s", "5m")
type scenarioSpec struct {
	ID           string           `yaml:"id"`
	Description  string           `yaml:"description"`
	Duration     string           `yaml:"duration"`
	Fault        faultSpec        `yaml:"fault"`
	Expectations expectationsSpec `yaml:"expectations"`
}

type faultSpec struct {
	Type      string         `yaml:"type"`
	Proxy     string         `yaml:"proxy"`
	Service   string         `yaml:"service"`
	Intensity float64        `yaml:"intensity"`
	Latency   *latencySpec   `yaml:"latency,omitempty"`
	Bandwidth *bandwidthSpec `yaml:"bandwidth,omitempty"`
	Sequence  []subFaultSpec `yaml:"sequence,omitempty"`
}

type latencySpec struct {
	MaxLatency string `yaml:"maxLatency"`
	Jitter     string `yaml:"jitter,omitempty"`
}

type bandwidthSpec struct {
	MaxRateKB int64 `yaml:"maxRateKB"`
}

type subFaultSpec struct {
	Config   faultSpec `yaml:"config"`
	Delay    string    `yaml:"delay"`
	Duration string    `yaml:"duration"`
}

type expectationsSpec struct {
	MaxRecoveryTime      string       `yaml:"maxRecoveryTime"`
	ExpectedMechanisms   []string     `yaml:"expectedMechanisms,omitempty"`
	HealthCheckEndpoints []string     `yaml:"healthCheckEndpoints,omitempty"`
	SuccessCriteria      criteriaSpec `yaml:"successCriteria"`
}

type criteriaSpec struct {
	MinimumSuccessRate      float64  `yaml:"minimumSuccessRate"`
	MaximumResponseTime     string   `yaml:"maximumResponseTime,omitempty"`
	RequiredHealthEndpoints []string `yaml:"requiredHealthEndpoints,omitempty"`
	DataConsistencyChecks   []string `yaml:"dataConsistencyChecks,omitempty"`
}

// LoadFromFile parses one scenario definition and validates its fault block
func LoadFromFile(path string) (types.ChaosScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ChaosScenario{}, errors.Wrapf(err, "unable to read scenario file %v", path)
	}
	return Parse(data)
}

// Parse decodes one yaml scenario definition
func Parse(data []byte) (types.ChaosScenario, error) {
	var spec scenarioSpec
	if err := yaml.UnmarshalStrict(data, &spec); err != nil {
		return types.ChaosScenario{}, errors.Wrap(err, "malformed scenario yaml")
	}

	scenario := types.ChaosScenario{
		ID:          spec.ID,
		Description: spec.Description,
	}
	if scenario.ID == "" {
		return types.ChaosScenario{}, errors.New("scenario requires an id")
	}

	var err error
	if scenario.Duration, err = parseDuration(spec.Duration, "duration"); err != nil {
		return types.ChaosScenario{}, err
	}
	if scenario.Duration <= 0 {
		return types.ChaosScenario{}, errors.New("scenario requires a positive duration")
	}

	if scenario.Fault, err = spec.Fault.toConfig(); err != nil {
		return types.ChaosScenario{}, err
	}
	if err := scenario.Fault.Validate(); err != nil {
		return types.ChaosScenario{}, errors.Wrap(err, "invalid fault block")
	}

	expectations := types.RecoveryExpectations{
		ExpectedMechanisms:   spec.Expectations.ExpectedMechanisms,
		HealthCheckEndpoints: spec.Expectations.HealthCheckEndpoints,
		SuccessCriteria: types.SuccessCriteria{
			MinimumSuccessRate:      spec.Expectations.SuccessCriteria.MinimumSuccessRate,
			RequiredHealthEndpoints: spec.Expectations.SuccessCriteria.RequiredHealthEndpoints,
			DataConsistencyChecks:   spec.Expectations.SuccessCriteria.DataConsistencyChecks,
		},
	}
	if expectations.MaxRecoveryTime, err = parseDuration(spec.Expectations.MaxRecoveryTime, "maxRecoveryTime"); err != nil {
		return types.ChaosScenario{}, err
	}
	if expectations.MaxRecoveryTime <= 0 {
		return types.ChaosScenario{}, errors.New("scenario requires a positive maxRecoveryTime")
	}
	if expectations.SuccessCriteria.MaximumResponseTime, err = parseDuration(spec.Expectations.SuccessCriteria.MaximumResponseTime, "maximumResponseTime"); err != nil {
		return types.ChaosScenario{}, err
	}
	scenario.Expectations = expectations

	return scenario, nil
}

func (fs faultSpec) toConfig() (types.FaultConfiguration, error) {
	config := types.FaultConfiguration{
		Type:      types.FaultType(fs.Type),
		Proxy:     fs.Proxy,
		Service:   fs.Service,
		Intensity: fs.Intensity,
	}

	var err error
	if fs.Latency != nil {
		latency := &types.LatencyParams{}
		if latency.MaxLatency, err = parseDuration(fs.Latency.MaxLatency, "latency.maxLatency"); err != nil {
			return config, err
		}
		if latency.Jitter, err = parseDuration(fs.Latency.Jitter, "latency.jitter"); err != nil {
			return config, err
		}
		config.Latency = latency
	}
	if fs.Bandwidth != nil {
		config.Bandwidth = &types.BandwidthParams{MaxRateKB: fs.Bandwidth.MaxRateKB}
	}
	for i, sub := range fs.Sequence {
		subConfig, err := sub.Config.toConfig()
		if err != nil {
			return config, errors.Wrapf(err, "sub-fault %d", i)
		}
		subFault := types.SubFault{Config: subConfig}
		if subFault.Delay, err = parseDuration(sub.Delay, "delay"); err != nil {
			return config, errors.Wrapf(err, "sub-fault %d", i)
		}
		if subFault.Duration, err = parseDuration(sub.Duration, "duration"); err != nil {
			return config, errors.Wrapf(err, "sub-fault %d", i)
		}
		config.Sequence = append(config.Sequence, subFault)
	}
	return config, nil
}

func parseDuration(value, field string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %v", field)
	}
	return d, nil
}
