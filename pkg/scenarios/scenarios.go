package scenarios

import (
	"sort"
	"time"

	"github.com/faultline/faultline-go/pkg/types"
	"github.com/pkg/errors"
)

// built-in fixture names
const (
	NetworkPartition5Minutes = "NETWORK_PARTITION_5_MINUTES"
	PartialPartition50       = "PARTIAL_PARTITION_50"
	HighLatency5Seconds      = "HIGH_LATENCY_5_SECONDS"
	BandwidthLimit100KB      = "BANDWIDTH_LIMIT_100KB"
	JitterWithLoss           = "JITTER_WITH_LOSS"
	CascadingNetworkFailure  = "CASCADING_NETWORK_FAILURE"
)

// defaultProxy is the toxiproxy proxy name the fixtures act on, overridable
// per scenario through a yaml definition
const defaultProxy = "bridge"

var fixtures = map[string]types.ChaosScenario{
	NetworkPartition5Minutes: {
		ID:          NetworkPartition5Minutes,
		Description: "full network partition held for five minutes",
		Duration:    5 * time.Minute,
		Fault: types.FaultConfiguration{
			Type:      types.FaultNetworkPartition,
			Proxy:     defaultProxy,
			Intensity: 1.0,
		},
		Expectations: types.RecoveryExpectations{
			MaxRecoveryTime:    60 * time.Second,
			ExpectedMechanisms: []string{types.MechanismCircuitBreaker},
			SuccessCriteria: types.SuccessCriteria{
				MinimumSuccessRate: 0.1,
			},
		},
	},
	PartialPartition50: {
		ID:          PartialPartition50,
		Description: "half of the traffic dropped for twenty seconds",
		Duration:    20 * time.Second,
		Fault: types.FaultConfiguration{
			Type:      types.FaultNetworkPartition,
			Proxy:     defaultProxy,
			Intensity: 0.5,
		},
		Expectations: types.RecoveryExpectations{
			MaxRecoveryTime:    45 * time.Second,
			ExpectedMechanisms: []string{types.MechanismRetryLogic},
			SuccessCriteria: types.SuccessCriteria{
				MinimumSuccessRate: 0.3,
			},
		},
	},
	HighLatency5Seconds: {
		ID:          HighLatency5Seconds,
		Description: "five seconds of added latency at 80% intensity",
		Duration:    25 * time.Second,
		Fault: types.FaultConfiguration{
			Type:      types.FaultHighLatency,
			Proxy:     defaultProxy,
			Intensity: 0.8,
			Latency:   &types.LatencyParams{MaxLatency: 5 * time.Second},
		},
		Expectations: types.RecoveryExpectations{
			MaxRecoveryTime:    30 * time.Second,
			ExpectedMechanisms: []string{types.MechanismCircuitBreaker},
			SuccessCriteria: types.SuccessCriteria{
				MinimumSuccessRate:  0.2,
				MaximumResponseTime: 10 * time.Second,
			},
		},
	},
	BandwidthLimit100KB: {
		ID:          BandwidthLimit100KB,
		Description: "link throttled to roughly 100KB/s for twenty seconds",
		Duration:    20 * time.Second,
		Fault: types.FaultConfiguration{
			Type:      types.FaultBandwidthLimit,
			Proxy:     defaultProxy,
			Intensity: 0.9,
			Bandwidth: &types.BandwidthParams{MaxRateKB: 1000},
		},
		Expectations: types.RecoveryExpectations{
			MaxRecoveryTime:    30 * time.Second,
			ExpectedMechanisms: []string{types.MechanismGracefulDegradation},
			SuccessCriteria: types.SuccessCriteria{
				MinimumSuccessRate: 0.4,
			},
		},
	},
	JitterWithLoss: {
		ID:          JitterWithLoss,
		Description: "latency jitter combined with packet loss",
		Duration:    30 * time.Second,
		Fault: types.FaultConfiguration{
			Type:      types.FaultJitterWithLoss,
			Proxy:     defaultProxy,
			Intensity: 0.6,
			Latency:   &types.LatencyParams{MaxLatency: 2 * time.Second},
		},
		Expectations: types.RecoveryExpectations{
			MaxRecoveryTime:    45 * time.Second,
			ExpectedMechanisms: []string{types.MechanismRetryLogic},
			SuccessCriteria: types.SuccessCriteria{
				MinimumSuccessRate: 0.3,
			},
		},
	},
	CascadingNetworkFailure: {
		ID:          CascadingNetworkFailure,
		Description: "latency, then bandwidth collapse, then a partition, overlapping over one minute",
		Duration:    60 * time.Second,
		Fault: types.FaultConfiguration{
			Type: types.FaultCascadingSequence,
			Sequence: []types.SubFault{
				{
					Delay:    0,
					Duration: 15 * time.Second,
					Config: types.FaultConfiguration{
						Type:      types.FaultHighLatency,
						Proxy:     defaultProxy,
						Intensity: 0.7,
						Latency:   &types.LatencyParams{MaxLatency: 3 * time.Second},
					},
				},
				{
					Delay:    10 * time.Second,
					Duration: 20 * time.Second,
					Config: types.FaultConfiguration{
						Type:      types.FaultBandwidthLimit,
						Proxy:     defaultProxy,
						Intensity: 0.9,
						Bandwidth: &types.BandwidthParams{MaxRateKB: 1000},
					},
				},
				{
					Delay:    25 * time.Second,
					Duration: 15 * time.Second,
					Config: types.FaultConfiguration{
						Type:      types.FaultNetworkPartition,
						Proxy:     defaultProxy,
						Intensity: 1.0,
					},
				},
			},
		},
		Expectations: types.RecoveryExpectations{
			MaxRecoveryTime: 90 * time.Second,
			ExpectedMechanisms: []string{
				types.MechanismCircuitBreaker,
				types.MechanismRetryLogic,
				types.MechanismGracefulDegradation,
			},
			SuccessCriteria: types.SuccessCriteria{
				MinimumSuccessRate: 0.1,
			},
		},
	},
}

// Get returns the named built-in fixture
func Get(name string) (types.ChaosScenario, error) {
	scenario, ok := fixtures[name]
	if !ok {
		return types.ChaosScenario{}, errors.Errorf("unknown scenario '%v', known scenarios: %v", name, Names())
	}
	return scenario, nil
}

// Names lists the built-in fixtures in a stable order
func Names() []string {
	names := make([]string, 0, len(fixtures))
	for name := range fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
