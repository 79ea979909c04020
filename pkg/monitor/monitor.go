package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/faultline/faultline-go/pkg/clients"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/probe"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the monitor's view of the target for scraping
type Metrics struct {
	Probes       prometheus.Counter
	Failures     prometheus.Counter
	ErrorRate    prometheus.Gauge
	ResponseTime prometheus.Gauge
	Throughput   prometheus.Gauge
}

// NewMetrics builds the metric set and registers it when a registerer is
// given, a nil registerer keeps the metrics local
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		Probes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaos_monitor_probes_total",
			Help: "Metric samples taken against the target system",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chaos_monitor_probe_failures_total",
			Help: "Metric samples that found the target unreachable",
		}),
		ErrorRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chaos_monitor_error_rate",
			Help: "Last observed application error rate",
		}),
		ResponseTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chaos_monitor_response_time_ms",
			Help: "Last observed application response time in milliseconds",
		}),
		Throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chaos_monitor_throughput",
			Help: "Last observed application throughput",
		}),
	}
	if reg != nil {
		reg.MustRegister(metrics.Probes, metrics.Failures, metrics.ErrorRate, metrics.ResponseTime, metrics.Throughput)
	}
	return metrics
}

// Aggregates summarises a monitoring window for baseline comparisons
type Aggregates struct {
	Samples         int
	AvgErrorRate    float64
	PeakErrorRate   float64
	AvgThroughput   float64
	MaxResponseTime time.Duration
}

// Monitor samples target metrics on a fixed wall-clock interval independent
// of fault and recovery timing. Sampling failures are recorded as snapshots
// with an error rate of 1 instead of being dropped, so the sequence stays
// complete and evenly spaced.
type Monitor struct {
	target   *clients.TargetClient
	interval time.Duration
	metrics  *Metrics

	mu        sync.Mutex
	snapshots []types.SystemMetricsSnapshot
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

func New(target *clients.TargetClient, interval time.Duration, metrics *Metrics) *Monitor {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Monitor{
		target:   target,
		interval: interval,
		metrics:  metrics,
	}
}

// Start begins the sampling loop, one sample is taken immediately
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.snapshots = nil
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	log.Infof("[Status]: Monitoring %v every %v", m.target.BaseURL, m.interval)

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.sample()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop ends the loop and returns the ordered snapshot sequence. Safe to call
// when the monitor is not running.
func (m *Monitor) Stop() []types.SystemMetricsSnapshot {
	m.mu.Lock()
	if !m.running {
		snapshots := m.copySnapshots()
		m.mu.Unlock()
		return snapshots
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copySnapshots()
}

// Snapshots returns a copy of the sequence collected so far
func (m *Monitor) Snapshots() []types.SystemMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copySnapshots()
}

// Aggregates folds the collected sequence for baseline comparisons
func (m *Monitor) Aggregates() Aggregates {
	snapshots := m.Snapshots()

	agg := Aggregates{Samples: len(snapshots)}
	if len(snapshots) == 0 {
		return agg
	}
	for _, snap := range snapshots {
		agg.AvgErrorRate += snap.Application.ErrorRate
		agg.AvgThroughput += snap.Application.Throughput
		if snap.Application.ErrorRate > agg.PeakErrorRate {
			agg.PeakErrorRate = snap.Application.ErrorRate
		}
		if snap.Application.ResponseTime > agg.MaxResponseTime {
			agg.MaxResponseTime = snap.Application.ResponseTime
		}
	}
	agg.AvgErrorRate /= float64(len(snapshots))
	agg.AvgThroughput /= float64(len(snapshots))
	return agg
}

func (m *Monitor) sample() {
	result := probe.TriggerHTTPProbe(m.target.HTTP, m.target.MetricsURL())

	snapshot := types.SystemMetricsSnapshot{
		Timestamp: result.Timestamp,
		Reachable: result.Success,
	}

	m.metrics.Probes.Inc()
	switch {
	case !result.Success:
		// an unreachable target is a degraded sample, not a gap
		m.metrics.Failures.Inc()
		snapshot.Application.ErrorRate = 1.0
		snapshot.Application.ResponseTime = result.ResponseTime
	case result.HasBody:
		snapshot.Application.ErrorRate = result.Status.ErrorRate
		snapshot.Application.ResponseTime = time.Duration(result.Status.ResponseTimeMs * float64(time.Millisecond))
		snapshot.Application.Throughput = result.Status.Throughput
		snapshot.Resources.MemoryBytes = result.Status.MemoryBytes
		snapshot.Resources.CPUPercent = result.Status.CPUPercent
	default:
		snapshot.Application.ResponseTime = result.ResponseTime
	}

	m.metrics.ErrorRate.Set(snapshot.Application.ErrorRate)
	m.metrics.ResponseTime.Set(float64(snapshot.Application.ResponseTime.Milliseconds()))
	m.metrics.Throughput.Set(snapshot.Application.Throughput)

	m.mu.Lock()
	m.snapshots = append(m.snapshots, snapshot)
	m.mu.Unlock()
}

func (m *Monitor) copySnapshots() []types.SystemMetricsSnapshot {
	return append([]types.SystemMetricsSnapshot(nil), m.snapshots...)
}
