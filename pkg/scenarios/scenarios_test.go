package scenarios

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faultline/faultline-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtures_AllValidate(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			scenario, err := Get(name)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.ID)
			assert.Greater(t, scenario.Duration, time.Duration(0))
			assert.Greater(t, scenario.Expectations.MaxRecoveryTime, time.Duration(0))
			assert.NoError(t, scenario.Fault.Validate())
		})
	}
}

func TestGet_UnknownScenario(t *testing.T) {
	_, err := Get("NO_SUCH_SCENARIO")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario")
}

func TestParse_FullScenario(t *testing.T) {
	scenario, err := Parse([]byte(`
id: custom-latency
description: latency probe for the staging bridge
duration: 25s
fault:
  type: high_latency
  proxy: staging-bridge
  intensity: 0.8
  latency:
    maxLatency: 3s
    jitter: 500ms
expectations:
  maxRecoveryTime: 30s
  expectedMechanisms: [circuit_breaker]
  successCriteria:
    minimumSuccessRate: 0.2
    maximumResponseTime: 10s
    dataConsistencyChecks: [ordering]
`))
	require.NoError(t, err)

	assert.Equal(t, "custom-latency", scenario.ID)
	assert.Equal(t, 25*time.Second, scenario.Duration)
	assert.Equal(t, types.FaultHighLatency, scenario.Fault.Type)
	assert.Equal(t, "staging-bridge", scenario.Fault.Proxy)
	require.NotNil(t, scenario.Fault.Latency)
	assert.Equal(t, 3*time.Second, scenario.Fault.Latency.MaxLatency)
	assert.Equal(t, 500*time.Millisecond, scenario.Fault.Latency.Jitter)
	assert.Equal(t, 30*time.Second, scenario.Expectations.MaxRecoveryTime)
	assert.Equal(t, []string{"ordering"}, scenario.Expectations.SuccessCriteria.DataConsistencyChecks)
}

func TestParse_CascadingSequence(t *testing.T) {
	scenario, err := Parse([]byte(`
id: cascade
duration: 60s
fault:
  type: cascading_sequence
  sequence:
    - delay: 0s
      duration: 15s
      config:
        type: high_latency
        proxy: bridge
        intensity: 0.7
        latency:
          maxLatency: 3s
    - delay: 25s
      duration: 15s
      config:
        type: network_partition
        proxy: bridge
        intensity: 1.0
expectations:
  maxRecoveryTime: 90s
  successCriteria:
    minimumSuccessRate: 0.1
`))
	require.NoError(t, err)
	require.Len(t, scenario.Fault.Sequence, 2)
	assert.Equal(t, 25*time.Second, scenario.Fault.Sequence[1].Delay)
	assert.Equal(t, types.FaultNetworkPartition, scenario.Fault.Sequence[1].Config.Type)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "duration: 10s\nfault: {type: network_partition, proxy: p, intensity: 1}\nexpectations: {maxRecoveryTime: 10s}"},
		{"bad duration", "id: x\nduration: soon\nfault: {type: network_partition, proxy: p, intensity: 1}\nexpectations: {maxRecoveryTime: 10s}"},
		{"invalid fault", "id: x\nduration: 10s\nfault: {type: network_partition, intensity: 1}\nexpectations: {maxRecoveryTime: 10s}"},
		{"unknown field", "id: x\nduration: 10s\nblast_radius: full\nfault: {type: network_partition, proxy: p, intensity: 1}\nexpectations: {maxRecoveryTime: 10s}"},
		{"missing maxRecoveryTime", "id: x\nduration: 10s\nfault: {type: network_partition, proxy: p, intensity: 1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
id: from-file
duration: 10s
fault:
  type: network_partition
  proxy: bridge
  intensity: 1.0
expectations:
  maxRecoveryTime: 20s
  successCriteria:
    minimumSuccessRate: 0.1
`), 0o644))

	scenario, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", scenario.ID)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
