package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFaultConfigurationValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  FaultConfiguration
		wantErr string
	}{
		{
			name:   "valid partition",
			config: FaultConfiguration{Type: FaultNetworkPartition, Proxy: "bridge", Intensity: 1.0},
		},
		{
			name: "valid latency",
			config: FaultConfiguration{
				Type: FaultHighLatency, Proxy: "bridge", Intensity: 0.8,
				Latency: &LatencyParams{MaxLatency: 3 * time.Second},
			},
		},
		{
			name: "valid bandwidth",
			config: FaultConfiguration{
				Type: FaultBandwidthLimit, Proxy: "bridge", Intensity: 0.9,
				Bandwidth: &BandwidthParams{MaxRateKB: 1000},
			},
		},
		{
			name:   "valid process kill",
			config: FaultConfiguration{Type: FaultProcessKill, Service: "worker", Intensity: 1.0},
		},
		{
			name:    "intensity above one",
			config:  FaultConfiguration{Type: FaultNetworkPartition, Proxy: "bridge", Intensity: 1.5},
			wantErr: "out of the [0,1] range",
		},
		{
			name:    "negative intensity",
			config:  FaultConfiguration{Type: FaultNetworkPartition, Proxy: "bridge", Intensity: -0.1},
			wantErr: "out of the [0,1] range",
		},
		{
			name:    "partition without proxy",
			config:  FaultConfiguration{Type: FaultNetworkPartition, Intensity: 1.0},
			wantErr: "requires a proxy name",
		},
		{
			name:    "latency without parameters",
			config:  FaultConfiguration{Type: FaultHighLatency, Proxy: "bridge", Intensity: 0.8},
			wantErr: "requires latency parameters",
		},
		{
			name:    "bandwidth without parameters",
			config:  FaultConfiguration{Type: FaultBandwidthLimit, Proxy: "bridge", Intensity: 0.9},
			wantErr: "requires bandwidth parameters",
		},
		{
			name:    "process kill without service",
			config:  FaultConfiguration{Type: FaultProcessKill, Intensity: 1.0},
			wantErr: "requires a service name",
		},
		{
			name:    "unknown type",
			config:  FaultConfiguration{Type: "cpu_burn", Intensity: 0.5},
			wantErr: "not supported",
		},
		{
			name:    "empty sequence",
			config:  FaultConfiguration{Type: FaultCascadingSequence},
			wantErr: "non-empty sequence",
		},
		{
			name: "nested sequence",
			config: FaultConfiguration{
				Type: FaultCascadingSequence,
				Sequence: []SubFault{{
					Config:   FaultConfiguration{Type: FaultCascadingSequence},
					Duration: time.Second,
				}},
			},
			wantErr: "cannot nest",
		},
		{
			name: "sub-fault without duration",
			config: FaultConfiguration{
				Type: FaultCascadingSequence,
				Sequence: []SubFault{{
					Config: FaultConfiguration{Type: FaultNetworkPartition, Proxy: "bridge", Intensity: 1.0},
				}},
			},
			wantErr: "positive duration",
		},
		{
			name: "invalid sub-fault bubbles up",
			config: FaultConfiguration{
				Type: FaultCascadingSequence,
				Sequence: []SubFault{{
					Config:   FaultConfiguration{Type: FaultNetworkPartition, Intensity: 1.0},
					Duration: time.Second,
				}},
			},
			wantErr: "sub-fault 0 is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPriorityWeightOrdering(t *testing.T) {
	assert.Greater(t, PriorityWeight(PriorityCritical), PriorityWeight(PriorityHigh))
	assert.Greater(t, PriorityWeight(PriorityHigh), PriorityWeight(PriorityMedium))
	assert.Greater(t, PriorityWeight(PriorityMedium), PriorityWeight(PriorityLow))
	assert.Greater(t, PriorityWeight(PriorityLow), PriorityWeight("unknown"))
}
