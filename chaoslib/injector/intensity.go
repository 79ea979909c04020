package injector

import (
	"time"

	"github.com/faultline/faultline-go/chaoslib/toxiproxy"
	"github.com/faultline/faultline-go/pkg/math"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/pkg/errors"
)

// The normalized 0.0-1.0 intensity knob maps to a physical fault parameter
// through one explicit function per fault type.

// PartitionLoss maps intensity to the packet-loss fraction of a partition,
// 1.0 is a complete partition
func PartitionLoss(intensity float64) float64 {
	return clamp01(intensity)
}

// EffectiveLatency maps intensity to the injected latency, linear against
// the configured upper bound
func EffectiveLatency(maxLatency time.Duration, intensity float64) time.Duration {
	return time.Duration(float64(maxLatency) * clamp01(intensity))
}

// JitterFor derives the jitter applied alongside an effective latency
func JitterFor(effective time.Duration) time.Duration {
	return effective / 4
}

// LossWithJitter maps intensity to the loss fraction that accompanies a
// jitter_with_loss fault
func LossWithJitter(intensity float64) float64 {
	return clamp01(intensity) * 0.3
}

// BandwidthRate maps intensity to the remaining link rate in KB/s, floored
// at 1 KB/s so the link is limited rather than cut
func BandwidthRate(maxRateKB int64, intensity float64) int64 {
	rate := int(float64(maxRateKB) * (1 - clamp01(intensity)))
	return int64(math.Maximum(rate, 1))
}

// buildToxics translates a declarative fault configuration into the toxics
// to apply on the proxy
func buildToxics(config types.FaultConfiguration) ([]toxiproxy.Toxic, error) {
	switch config.Type {
	case types.FaultNetworkPartition:
		return []toxiproxy.Toxic{
			{
				Name:       "faultline-partition",
				Type:       toxiproxy.ToxicTimeout,
				Stream:     toxiproxy.StreamDownstream,
				Toxicity:   PartitionLoss(config.Intensity),
				Attributes: map[string]interface{}{"timeout": 0},
			},
		}, nil
	case types.FaultHighLatency:
		effective := EffectiveLatency(config.Latency.MaxLatency, config.Intensity)
		jitter := config.Latency.Jitter
		if jitter == 0 {
			jitter = JitterFor(effective)
		}
		return []toxiproxy.Toxic{
			{
				Name:     "faultline-latency",
				Type:     toxiproxy.ToxicLatency,
				Stream:   toxiproxy.StreamDownstream,
				Toxicity: 1.0,
				Attributes: map[string]interface{}{
					"latency": effective.Milliseconds(),
					"jitter":  jitter.Milliseconds(),
				},
			},
		}, nil
	case types.FaultJitterWithLoss:
		effective := EffectiveLatency(config.Latency.MaxLatency, config.Intensity)
		return []toxiproxy.Toxic{
			{
				Name:     "faultline-jitter",
				Type:     toxiproxy.ToxicLatency,
				Stream:   toxiproxy.StreamDownstream,
				Toxicity: 1.0,
				Attributes: map[string]interface{}{
					"latency": effective.Milliseconds(),
					"jitter":  JitterFor(effective).Milliseconds(),
				},
			},
			{
				Name:       "faultline-loss",
				Type:       toxiproxy.ToxicTimeout,
				Stream:     toxiproxy.StreamDownstream,
				Toxicity:   LossWithJitter(config.Intensity),
				Attributes: map[string]interface{}{"timeout": 0},
			},
		}, nil
	case types.FaultBandwidthLimit:
		return []toxiproxy.Toxic{
			{
				Name:     "faultline-bandwidth",
				Type:     toxiproxy.ToxicBandwidth,
				Stream:   toxiproxy.StreamDownstream,
				Toxicity: 1.0,
				Attributes: map[string]interface{}{
					"rate": BandwidthRate(config.Bandwidth.MaxRateKB, config.Intensity),
				},
			},
		}, nil
	}
	return nil, errors.Errorf("fault type '%v' does not map to toxics", config.Type)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
