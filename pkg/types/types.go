package types

import (
	"time"

	"github.com/pkg/errors"
)

// FaultType enumerates the faults the injector knows how to apply
type FaultType string

const (
	FaultNetworkPartition  FaultType = "network_partition"
	FaultHighLatency       FaultType = "high_latency"
	FaultBandwidthLimit    FaultType = "bandwidth_limit"
	FaultJitterWithLoss    FaultType = "jitter_with_loss"
	FaultCascadingSequence FaultType = "cascading_sequence"
	// FaultProcessKill is only valid as a sub-fault of a cascading sequence
	FaultProcessKill FaultType = "process_kill"
)

// resilience mechanisms the validator can classify from observed behaviour
const (
	MechanismCircuitBreaker      string = "circuit_breaker"
	MechanismRetryLogic          string = "retry_logic"
	MechanismGracefulDegradation string = "graceful_degradation"
	MechanismHealthCheckRecovery string = "health_check_recovery"
)

// recovery phase names, five phases are always produced per run
const (
	PhaseDetection    string = "detection"
	PhaseDiagnosis    string = "diagnosis"
	PhaseResponse     string = "response"
	PhaseRecovery     string = "recovery"
	PhaseVerification string = "verification"
)

// benchmark rankings, a pure function of mttr against the fixed thresholds
const (
	RankingExcellent string = "excellent"
	RankingGood      string = "good"
	RankingAverage   string = "average"
	RankingPoor      string = "poor"
	RankingCritical  string = "critical"
)

// recommendation priorities
const (
	PriorityCritical string = "critical"
	PriorityHigh     string = "high"
	PriorityMedium   string = "medium"
	PriorityLow      string = "low"
)

// trend directions
const (
	TrendImproving string = "improving"
	TrendDegrading string = "degrading"
	TrendStable    string = "stable"
)

// analyzer defaults, all overridable through AnalyzerSettings
const (
	DefaultHistoryCapacity     = 100
	DefaultTrendWindow         = 20
	DefaultBaselineWindow      = 10
	DefaultConsecutiveSuccess  = 3
	DefaultModeBucketMillis    = 1000.0
	DefaultConfidenceZ         = 1.96
	DefaultTrendSlopeThreshold = 1000.0
	DefaultOrganizationTarget  = 30 * time.Second
	DefaultIndustryStandard    = 60 * time.Second
)

// DefaultRankingThresholds are the mttr upper bounds, in order, for
// excellent, good, average and poor. Anything above the last is critical.
var DefaultRankingThresholds = [4]time.Duration{
	5 * time.Second,
	30 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

// LatencyParams carries the knobs of a latency-style fault
type LatencyParams struct {
	MaxLatency time.Duration `yaml:"maxLatency" json:"maxLatency"`
	Jitter     time.Duration `yaml:"jitter" json:"jitter"`
}

// BandwidthParams carries the knobs of a bandwidth-limiting fault
type BandwidthParams struct {
	// MaxRateKB is the uncapped link rate in KB/s the intensity is applied to
	MaxRateKB int64 `yaml:"maxRateKB" json:"maxRateKB"`
}

// SubFault is one timed entry of a cascading sequence, offsets are relative
// to scenario start
type SubFault struct {
	Config   FaultConfiguration `yaml:"config" json:"config"`
	Delay    time.Duration      `yaml:"delay" json:"delay"`
	Duration time.Duration      `yaml:"duration" json:"duration"`
}

// FaultConfiguration declares what fault to inject and how hard. The
// parameter fields form a tagged union keyed by Type: only the fields
// relevant to the declared type may be set.
type FaultConfiguration struct {
	Type      FaultType        `yaml:"type" json:"type"`
	Proxy     string           `yaml:"proxy" json:"proxy"`
	Service   string           `yaml:"service" json:"service"`
	Intensity float64          `yaml:"intensity" json:"intensity"`
	Latency   *LatencyParams   `yaml:"latency,omitempty" json:"latency,omitempty"`
	Bandwidth *BandwidthParams `yaml:"bandwidth,omitempty" json:"bandwidth,omitempty"`
	Sequence  []SubFault       `yaml:"sequence,omitempty" json:"sequence,omitempty"`
}

// Validate rejects configurations the injector cannot apply
func (fc FaultConfiguration) Validate() error {
	if fc.Intensity < 0 || fc.Intensity > 1 {
		return errors.Errorf("intensity %v is out of the [0,1] range", fc.Intensity)
	}
	switch fc.Type {
	case FaultNetworkPartition:
		if fc.Proxy == "" {
			return errors.Errorf("%v fault requires a proxy name", fc.Type)
		}
	case FaultHighLatency, FaultJitterWithLoss:
		if fc.Proxy == "" {
			return errors.Errorf("%v fault requires a proxy name", fc.Type)
		}
		if fc.Latency == nil || fc.Latency.MaxLatency <= 0 {
			return errors.Errorf("%v fault requires latency parameters with a positive maxLatency", fc.Type)
		}
	case FaultBandwidthLimit:
		if fc.Proxy == "" {
			return errors.Errorf("%v fault requires a proxy name", fc.Type)
		}
		if fc.Bandwidth == nil || fc.Bandwidth.MaxRateKB <= 0 {
			return errors.Errorf("%v fault requires bandwidth parameters with a positive maxRateKB", fc.Type)
		}
	case FaultProcessKill:
		if fc.Service == "" {
			return errors.Errorf("%v fault requires a service name", fc.Type)
		}
	case FaultCascadingSequence:
		if len(fc.Sequence) == 0 {
			return errors.Errorf("%v fault requires a non-empty sequence", fc.Type)
		}
		for i := range fc.Sequence {
			sub := fc.Sequence[i]
			if sub.Config.Type == FaultCascadingSequence {
				return errors.Errorf("sequences cannot nest")
			}
			if sub.Duration <= 0 {
				return errors.Errorf("sub-fault %d requires a positive duration", i)
			}
			if err := sub.Config.Validate(); err != nil {
				return errors.Wrapf(err, "sub-fault %d is invalid", i)
			}
		}
	default:
		return errors.Errorf("fault type '%v' is not supported", fc.Type)
	}
	return nil
}

// SuccessCriteria is the pass bar of a scenario
type SuccessCriteria struct {
	MinimumSuccessRate      float64       `yaml:"minimumSuccessRate" json:"minimumSuccessRate"`
	MaximumResponseTime     time.Duration `yaml:"maximumResponseTime" json:"maximumResponseTime"`
	RequiredHealthEndpoints []string      `yaml:"requiredHealthEndpoints" json:"requiredHealthEndpoints"`
	DataConsistencyChecks   []string      `yaml:"dataConsistencyChecks" json:"dataConsistencyChecks"`
}

// RecoveryExpectations is the pass/fail criteria block of a scenario
type RecoveryExpectations struct {
	MaxRecoveryTime      time.Duration   `yaml:"maxRecoveryTime" json:"maxRecoveryTime"`
	ExpectedMechanisms   []string        `yaml:"expectedMechanisms" json:"expectedMechanisms"`
	SuccessCriteria      SuccessCriteria `yaml:"successCriteria" json:"successCriteria"`
	HealthCheckEndpoints []string        `yaml:"healthCheckEndpoints" json:"healthCheckEndpoints"`
}

// ChaosScenario is one declared experiment, immutable during execution
type ChaosScenario struct {
	ID           string               `yaml:"id" json:"id"`
	Description  string               `yaml:"description" json:"description"`
	Duration     time.Duration        `yaml:"duration" json:"duration"`
	Fault        FaultConfiguration   `yaml:"fault" json:"fault"`
	Expectations RecoveryExpectations `yaml:"expectations" json:"expectations"`
}

// ApplicationMetrics is the application-level slice of a snapshot
type ApplicationMetrics struct {
	ErrorRate    float64       `json:"errorRate"`
	ResponseTime time.Duration `json:"responseTime"`
	Throughput   float64       `json:"throughput"`
}

// ResourceMetrics is the resource slice of a snapshot
type ResourceMetrics struct {
	MemoryBytes uint64  `json:"memoryBytes"`
	CPUPercent  float64 `json:"cpuPercent"`
}

// SystemMetricsSnapshot is one sampled point in time, the monitor appends
// them to an ordered sequence with no gaps
type SystemMetricsSnapshot struct {
	Timestamp   time.Time          `json:"timestamp"`
	Reachable   bool               `json:"reachable"`
	Application ApplicationMetrics `json:"application"`
	Resources   ResourceMetrics    `json:"resources"`
}

// FaultInjectionResult is the outcome of applying the fault, produced once
// per run and immutable afterwards
type FaultInjectionResult struct {
	Type      FaultType `json:"type"`
	Intensity float64   `json:"intensity"`
	Success   bool      `json:"success"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Errors    []string  `json:"errors,omitempty"`
}

// HealthCheckResult is one health endpoint observation
type HealthCheckResult struct {
	Endpoint     string        `json:"endpoint"`
	Healthy      bool          `json:"healthy"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
	Error        string        `json:"error,omitempty"`
}

// ConsistencyResult is the verdict of one data-consistency check
type ConsistencyResult struct {
	Name       string `json:"name"`
	Consistent bool   `json:"consistent"`
	Detail     string `json:"detail,omitempty"`
}

// RecoveryValidationResult is the outcome of recovery observation
type RecoveryValidationResult struct {
	Success                bool                `json:"success"`
	MechanismsActivated    []string            `json:"mechanismsActivated"`
	SuccessRate            float64             `json:"successRate"`
	RecoveryTime           time.Duration       `json:"recoveryTime"`
	DetectionTime          time.Duration       `json:"detectionTime"`
	HealthCheckResults     []HealthCheckResult `json:"healthCheckResults"`
	DataConsistencyResults []ConsistencyResult `json:"dataConsistencyResults"`
	FailStep               string              `json:"failStep,omitempty"`
}

// PhaseActivity annotates a recovery phase, it never feeds timing arithmetic
type PhaseActivity struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Automated bool      `json:"automated"`
	Success   bool      `json:"success"`
	Impact    string    `json:"impact"`
}

// RecoveryPhase is a named sub-interval of the recovery window
type RecoveryPhase struct {
	Phase        string          `json:"phase"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      time.Time       `json:"endTime"`
	Duration     time.Duration   `json:"duration"`
	Success      bool            `json:"success"`
	Activities   []PhaseActivity `json:"activities"`
	Bottlenecks  []string        `json:"bottlenecks,omitempty"`
	Improvements []string        `json:"improvements,omitempty"`
}

// MTTRDataPoint is one historical measurement kept in the rolling history
type MTTRDataPoint struct {
	Timestamp           time.Time     `json:"timestamp"`
	MTTR                time.Duration `json:"mttr"`
	MTTA                time.Duration `json:"mtta"`
	Downtime            time.Duration `json:"downtime"`
	Availability        float64       `json:"availability"`
	Reliability         float64       `json:"reliability"`
	FaultType           FaultType     `json:"faultType"`
	RecoverySuccessful  bool          `json:"recoverySuccessful"`
}

// Percentiles of the historical mttr series, nearest-rank, in milliseconds
type Percentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ConfidenceInterval is the 95% interval around the historical mean
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// StatisticalAnalysis summarises the rolling history, all values in
// milliseconds. Samples always equals the current history length.
type StatisticalAnalysis struct {
	Samples            int                `json:"samples"`
	Mean               float64            `json:"mean"`
	Median             float64            `json:"median"`
	Mode               float64            `json:"mode"`
	StandardDeviation  float64            `json:"standardDeviation"`
	Variance           float64            `json:"variance"`
	Percentiles        Percentiles        `json:"percentiles"`
	ConfidenceInterval ConfidenceInterval `json:"confidenceInterval"`
}

// BenchmarkComparison positions the current mttr against history and the
// configured targets, durations in milliseconds
type BenchmarkComparison struct {
	Baseline           float64 `json:"baseline"`
	Current            float64 `json:"current"`
	ImprovementPercent float64 `json:"improvementPercent"`
	OrganizationTarget float64 `json:"organizationTarget"`
	IndustryStandard   float64 `json:"industryStandard"`
	Gap                float64 `json:"gap"`
	Ranking            string  `json:"ranking"`
}

// TrendPrediction extrapolates the mttr for a named horizon
type TrendPrediction struct {
	Horizon       string  `json:"horizon"`
	PredictedMTTR float64 `json:"predictedMTTR"`
	Confidence    float64 `json:"confidence"`
}

// TrendAnalysis is the least-squares view over the recent history
type TrendAnalysis struct {
	TrendDirection string            `json:"trendDirection"`
	ChangeRate     float64           `json:"changeRate"`
	Predictions    []TrendPrediction `json:"predictions,omitempty"`
}

// Recommendation is one actionable finding of the analyzer
type Recommendation struct {
	Category            string  `json:"category"`
	Priority            string  `json:"priority"`
	Description         string  `json:"description"`
	ExpectedImprovement float64 `json:"expectedImprovement"`
}

// MTTRAnalysisResult is the full analysis of one run
type MTTRAnalysisResult struct {
	MTTR            time.Duration        `json:"mttr"`
	MTTF            time.Duration        `json:"mttf"`
	MTTA            time.Duration        `json:"mtta"`
	Downtime        time.Duration        `json:"downtime"`
	Availability    float64              `json:"availability"`
	Reliability     float64              `json:"reliability"`
	RecoveryPhases  []RecoveryPhase      `json:"recoveryPhases"`
	Statistics      StatisticalAnalysis  `json:"statisticalAnalysis"`
	Benchmark       BenchmarkComparison  `json:"benchmarkComparison"`
	Trends          TrendAnalysis        `json:"trends"`
	Recommendations []Recommendation     `json:"recommendations"`
}

// Observation is one tagged event of the run's audit trail
type Observation struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// observation tags assembled by the runner
const (
	ObservationScenarioStarted   string = "scenario_started"
	ObservationFaultInjected     string = "fault_injected"
	ObservationFaultDetected     string = "fault_detected"
	ObservationMechanismObserved string = "mechanism_observed"
	ObservationFaultRemoved      string = "fault_removed"
	ObservationRecoveryConfirmed string = "recovery_confirmed"
	ObservationRecoveryTimeout   string = "recovery_timeout"
	ObservationAnalysisCompleted string = "analysis_completed"
	ObservationScenarioAborted   string = "scenario_aborted"
	ObservationCleanup           string = "cleanup"
)

// ChaosExecutionResult is the top-level run outcome returned to the caller
type ChaosExecutionResult struct {
	RunID              string                    `json:"runID"`
	ScenarioID         string                    `json:"scenarioID"`
	Success            bool                      `json:"success"`
	FaultInjection     *FaultInjectionResult     `json:"faultInjectionResult,omitempty"`
	RecoveryValidation *RecoveryValidationResult `json:"recoveryValidationResult,omitempty"`
	MTTRAnalysis       *MTTRAnalysisResult       `json:"mttrAnalysisResult,omitempty"`
	SystemMetrics      []SystemMetricsSnapshot   `json:"systemMetrics,omitempty"`
	Observations       []Observation             `json:"observations"`
	StartTime          time.Time                 `json:"startTime"`
	EndTime            time.Time                 `json:"endTime"`
	FailStep           string                    `json:"failStep,omitempty"`
}

// PriorityWeight orders recommendation priorities, higher sorts first
func PriorityWeight(priority string) int {
	switch priority {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}
