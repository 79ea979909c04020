package injector

import (
	"testing"
	"time"
)

func TestPartitionLoss(t *testing.T) {
	tests := []struct {
		name      string
		intensity float64
		expected  float64
	}{
		{"Complete partition", 1.0, 1.0},
		{"Partial partition", 0.5, 0.5},
		{"No fault", 0, 0},
		{"Clamped above", 1.7, 1.0},
		{"Clamped below", -0.2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PartitionLoss(tt.intensity); got != tt.expected {
				t.Errorf("PartitionLoss() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEffectiveLatency(t *testing.T) {
	tests := []struct {
		name      string
		max       time.Duration
		intensity float64
		expected  time.Duration
	}{
		{"80 percent of 3s", 3 * time.Second, 0.8, 2400 * time.Millisecond},
		{"Full latency", 5 * time.Second, 1.0, 5 * time.Second},
		{"Zero intensity", 3 * time.Second, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveLatency(tt.max, tt.intensity); got != tt.expected {
				t.Errorf("EffectiveLatency() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJitterFor(t *testing.T) {
	if got := JitterFor(2 * time.Second); got != 500*time.Millisecond {
		t.Errorf("JitterFor() = %v, want 500ms", got)
	}
}

func TestLossWithJitter(t *testing.T) {
	if got := LossWithJitter(0.5); got != 0.15 {
		t.Errorf("LossWithJitter() = %v, want 0.15", got)
	}
}

func TestBandwidthRate(t *testing.T) {
	tests := []struct {
		name      string
		maxKB     int64
		intensity float64
		expected  int64
	}{
		{"Half the link", 1000, 0.5, 500},
		{"Floors at 1KB/s", 1000, 1.0, 1},
		{"No limiting", 1000, 0, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BandwidthRate(tt.maxKB, tt.intensity); got != tt.expected {
				t.Errorf("BandwidthRate() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildToxics_JitterWithLossAppliesTwoToxics(t *testing.T) {
	config := fixtureLatencyConfig()
	config.Type = "jitter_with_loss"

	toxics, err := buildToxics(config)
	if err != nil {
		t.Fatalf("buildToxics() err = %v", err)
	}
	if len(toxics) != 2 {
		t.Fatalf("expected 2 toxics, got %d", len(toxics))
	}
	if toxics[1].Toxicity != LossWithJitter(config.Intensity) {
		t.Errorf("loss toxicity = %v, want %v", toxics[1].Toxicity, LossWithJitter(config.Intensity))
	}
}
