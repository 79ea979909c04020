package analyzer

import (
	"sync"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/math"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/sirupsen/logrus"
)

// Settings tunes the analyzer, zero values fall back to the package defaults
type Settings struct {
	HistoryCapacity    int
	TrendWindow        int
	BaselineWindow     int
	ModeBucketMillis   float64
	ConfidenceZ        float64
	SlopeThreshold     float64
	OrganizationTarget time.Duration
	IndustryStandard   time.Duration
	RankingThresholds  [4]time.Duration
}

func (s *Settings) applyDefaults() {
	if s.HistoryCapacity <= 0 {
		s.HistoryCapacity = types.DefaultHistoryCapacity
	}
	if s.TrendWindow <= 0 {
		s.TrendWindow = types.DefaultTrendWindow
	}
	if s.BaselineWindow <= 0 {
		s.BaselineWindow = types.DefaultBaselineWindow
	}
	if s.ModeBucketMillis <= 0 {
		s.ModeBucketMillis = types.DefaultModeBucketMillis
	}
	if s.ConfidenceZ <= 0 {
		s.ConfidenceZ = types.DefaultConfidenceZ
	}
	if s.SlopeThreshold <= 0 {
		s.SlopeThreshold = types.DefaultTrendSlopeThreshold
	}
	if s.OrganizationTarget <= 0 {
		s.OrganizationTarget = types.DefaultOrganizationTarget
	}
	if s.IndustryStandard <= 0 {
		s.IndustryStandard = types.DefaultIndustryStandard
	}
	if s.RankingThresholds == ([4]time.Duration{}) {
		s.RankingThresholds = types.DefaultRankingThresholds
	}
}

// Analyzer decomposes recovery windows and keeps a rolling history of runs.
// One analyzer belongs to one target, history is never shared across targets.
type Analyzer struct {
	settings Settings

	mu      sync.Mutex
	history []types.MTTRDataPoint
}

func New(settings Settings) *Analyzer {
	settings.applyDefaults()
	return &Analyzer{settings: settings}
}

// Prime seeds the rolling history, typically from a previous session's
// persisted runs. The capacity cap applies the same way it does for live runs.
func (a *Analyzer) Prime(points []types.MTTRDataPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, point := range points {
		a.appendLocked(point)
	}
}

// History returns a copy of the rolling history, oldest first
func (a *Analyzer) History() []types.MTTRDataPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.MTTRDataPoint(nil), a.history...)
}

// AnalyzeRecovery turns one recovery window into the full analysis. The
// window is the experiment's wall-clock span and anchors availability, it is
// usually longer than the recovery itself. The run is appended to the rolling
// history before statistics are computed, so the current run always counts.
func (a *Analyzer) AnalyzeRecovery(startTime, endTime time.Time, window time.Duration,
	faultResult types.FaultInjectionResult, recoveryResult *types.RecoveryValidationResult) *types.MTTRAnalysisResult {

	mttr := endTime.Sub(startTime)
	if mttr < 0 {
		mttr = 0
	}
	mtta := recoveryResult.DetectionTime
	if mtta < 0 {
		mtta = 0
	}
	downtime := mttr

	result := &types.MTTRAnalysisResult{
		MTTR:         mttr,
		MTTA:         mtta,
		Downtime:     downtime,
		Availability: availability(window, downtime),
		Reliability:  reliability(recoveryResult.Success, faultResult.Intensity),
	}

	result.RecoveryPhases = a.decomposePhases(startTime, endTime, mttr, mtta, recoveryResult)

	point := types.MTTRDataPoint{
		Timestamp:          startTime,
		MTTR:               mttr,
		MTTA:               mtta,
		Downtime:           downtime,
		Availability:       result.Availability,
		Reliability:        result.Reliability,
		FaultType:          faultResult.Type,
		RecoverySuccessful: recoveryResult.Success,
	}

	a.mu.Lock()
	prior := append([]types.MTTRDataPoint(nil), a.history...)
	a.appendLocked(point)
	history := append([]types.MTTRDataPoint(nil), a.history...)
	a.mu.Unlock()

	result.MTTF = meanTimeToFailure(history)
	result.Statistics = a.computeStatistics(history)
	result.Benchmark = a.computeBenchmark(mttr, prior)
	result.Trends = a.computeTrends(history)
	result.Recommendations = a.buildRecommendations(result)

	log.InfoWithValues("[Analysis]: Recovery window analyzed", logrus.Fields{
		"MTTR":         result.MTTR,
		"MTTA":         result.MTTA,
		"Availability": result.Availability,
		"Ranking":      result.Benchmark.Ranking,
		"Trend":        result.Trends.TrendDirection,
		"Samples":      result.Statistics.Samples,
	})
	return result
}

// appendLocked appends one point, evicting the oldest past capacity
func (a *Analyzer) appendLocked(point types.MTTRDataPoint) {
	a.history = append(a.history, point)
	if len(a.history) > a.settings.HistoryCapacity {
		a.history = a.history[len(a.history)-a.settings.HistoryCapacity:]
	}
}

func availability(window, downtime time.Duration) float64 {
	if window <= 0 {
		window = downtime
	}
	if window <= 0 {
		return 1
	}
	avail := float64(window-downtime) / float64(window)
	if avail < 0 {
		return 0
	}
	if avail > 1 {
		return 1
	}
	return avail
}

func reliability(recovered bool, intensity float64) float64 {
	score := 0.5
	if recovered {
		score = 0.9
	}
	if intensity > 0 {
		score *= 1 - intensity*0.2
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// decomposePhases splits [startTime, endTime] into the five named phases with
// a fixed proportional model. The four sequential phases tile the window
// exactly, verification overlaps the back half of recovery.
func (a *Analyzer) decomposePhases(startTime, endTime time.Time, mttr, mtta time.Duration,
	recoveryResult *types.RecoveryValidationResult) []types.RecoveryPhase {

	clamp := func(t time.Time) time.Time {
		if t.After(endTime) {
			return endTime
		}
		return t
	}

	diagnosisSpan := time.Duration(0.10 * float64(mttr))
	if diagnosisSpan < time.Second {
		diagnosisSpan = time.Second
	}
	responseSpan := time.Duration(0.20 * float64(mttr))
	if responseSpan < 2*time.Second {
		responseSpan = 2 * time.Second
	}

	b1 := clamp(startTime.Add(mtta))
	b2 := clamp(b1.Add(diagnosisSpan))
	b3 := clamp(b2.Add(responseSpan))

	detected := mtta > 0
	mechanisms := len(recoveryResult.MechanismsActivated)
	recovered := recoveryResult.Success
	consistent := true
	for _, check := range recoveryResult.DataConsistencyResults {
		if !check.Consistent {
			consistent = false
		}
	}

	detection := types.RecoveryPhase{
		Phase:     types.PhaseDetection,
		StartTime: startTime,
		EndTime:   b1,
		Success:   detected,
		Activities: []types.PhaseActivity{{
			Name:      "health probe sweep",
			Timestamp: startTime,
			Automated: true,
			Success:   detected,
			Impact:    "established failure onset",
		}},
	}
	if b1.Sub(startTime) > 10*time.Second {
		detection.Bottlenecks = append(detection.Bottlenecks, "failure went unnoticed for more than 10s")
		detection.Improvements = append(detection.Improvements, "tighten probe interval or alerting thresholds")
	}

	diagnosis := types.RecoveryPhase{
		Phase:     types.PhaseDiagnosis,
		StartTime: b1,
		EndTime:   b2,
		Success:   true,
		Activities: []types.PhaseActivity{
			{
				Name:      "error budget scan",
				Timestamp: b1,
				Automated: true,
				Success:   true,
				Impact:    "scoped the blast radius",
			},
			{
				Name:      "operator log triage",
				Timestamp: b1,
				Automated: false,
				Success:   true,
				Impact:    "correlated symptoms with the fault window",
			},
		},
	}

	response := types.RecoveryPhase{
		Phase:     types.PhaseResponse,
		StartTime: b2,
		EndTime:   b3,
		Success:   mechanisms > 0 || recovered,
		Activities: []types.PhaseActivity{{
			Name:      "resilience mechanisms engaged",
			Timestamp: b2,
			Automated: true,
			Success:   mechanisms > 0,
			Impact:    "contained the failure",
		}},
	}
	if mechanisms == 0 {
		response.Activities = append(response.Activities, types.PhaseActivity{
			Name:      "manual failover runbook",
			Timestamp: b2,
			Automated: false,
			Success:   recovered,
			Impact:    "no automated mechanism observed",
		})
		response.Bottlenecks = append(response.Bottlenecks, "no resilience mechanism activated")
	}

	recoveryPhase := types.RecoveryPhase{
		Phase:     types.PhaseRecovery,
		StartTime: b3,
		EndTime:   endTime,
		Success:   recovered,
		Activities: []types.PhaseActivity{{
			Name:      "service traffic restored",
			Timestamp: b3,
			Automated: true,
			Success:   recovered,
			Impact:    "sustained successful probes",
		}},
	}
	if !recovered {
		recoveryPhase.Activities = append(recoveryPhase.Activities, types.PhaseActivity{
			Name:      "manual service restart",
			Timestamp: b3,
			Automated: false,
			Success:   false,
			Impact:    "recovery not confirmed inside the window",
		})
		recoveryPhase.Bottlenecks = append(recoveryPhase.Bottlenecks, "recovery exceeded the expected window")
	}

	recoverySpan := endTime.Sub(b3)
	verificationStart := b3.Add(recoverySpan / 2)
	verification := types.RecoveryPhase{
		Phase:     types.PhaseVerification,
		StartTime: verificationStart,
		EndTime:   endTime,
		Success:   recovered && consistent,
		Activities: []types.PhaseActivity{{
			Name:      "consistency checks",
			Timestamp: verificationStart,
			Automated: true,
			Success:   consistent,
			Impact:    "validated data integrity after recovery",
		}},
	}
	if !recovered {
		verification.Activities = append(verification.Activities, types.PhaseActivity{
			Name:      "post-incident review",
			Timestamp: verificationStart,
			Automated: false,
			Success:   false,
			Impact:    "follow-up required",
		})
	}

	phases := []types.RecoveryPhase{detection, diagnosis, response, recoveryPhase, verification}
	for i := range phases {
		phases[i].Duration = phases[i].EndTime.Sub(phases[i].StartTime)
	}
	return phases
}

// computeStatistics folds the rolling history, values in milliseconds.
// Malformed history degrades to zeroed statistics instead of failing the run.
func (a *Analyzer) computeStatistics(history []types.MTTRDataPoint) types.StatisticalAnalysis {
	stats := types.StatisticalAnalysis{Samples: len(history)}
	stats.ConfidenceInterval.Level = 0.95
	if len(history) == 0 {
		return stats
	}

	series := make([]float64, len(history))
	for i, point := range history {
		series[i] = millis(point.MTTR)
	}
	if !math.IsFinite(series) {
		err := cerrors.Analysis{Reason: "historical mttr series contains non-finite values"}
		log.Warnf("[Analysis]: %v, falling back to empty statistics", err.Error())
		return stats
	}

	stats.Mean = math.Mean(series)
	stats.Median = math.Median(series)
	stats.Mode = math.Mode(series, a.settings.ModeBucketMillis)
	stats.Variance = math.Variance(series)
	stats.StandardDeviation = math.StdDev(series)
	stats.Percentiles = types.Percentiles{
		P50: math.Percentile(series, 50),
		P90: math.Percentile(series, 90),
		P95: math.Percentile(series, 95),
		P99: math.Percentile(series, 99),
	}
	lower, upper := math.ConfidenceInterval(series, a.settings.ConfidenceZ)
	stats.ConfidenceInterval.Lower = lower
	stats.ConfidenceInterval.Upper = upper
	return stats
}

// computeBenchmark positions the current mttr against the pre-run history
func (a *Analyzer) computeBenchmark(mttr time.Duration, prior []types.MTTRDataPoint) types.BenchmarkComparison {
	current := millis(mttr)

	baseline := current
	if len(prior) > 0 {
		keep := math.Minimum(len(prior), a.settings.BaselineWindow)
		window := prior[len(prior)-keep:]
		series := make([]float64, len(window))
		for i, point := range window {
			series[i] = millis(point.MTTR)
		}
		baseline = math.Mean(series)
	}

	improvement := 0.0
	if baseline != 0 {
		improvement = (baseline - current) / baseline * 100
	}

	gap := current - millis(a.settings.OrganizationTarget)
	if gap < 0 {
		gap = 0
	}

	return types.BenchmarkComparison{
		Baseline:           baseline,
		Current:            current,
		ImprovementPercent: improvement,
		OrganizationTarget: millis(a.settings.OrganizationTarget),
		IndustryStandard:   millis(a.settings.IndustryStandard),
		Gap:                gap,
		Ranking:            a.ranking(mttr),
	}
}

func (a *Analyzer) ranking(mttr time.Duration) string {
	thresholds := a.settings.RankingThresholds
	switch {
	case mttr <= thresholds[0]:
		return types.RankingExcellent
	case mttr <= thresholds[1]:
		return types.RankingGood
	case mttr <= thresholds[2]:
		return types.RankingAverage
	case mttr <= thresholds[3]:
		return types.RankingPoor
	}
	return types.RankingCritical
}

// computeTrends fits a least-squares line over the recent history
func (a *Analyzer) computeTrends(history []types.MTTRDataPoint) types.TrendAnalysis {
	if len(history) < 3 {
		return types.TrendAnalysis{TrendDirection: types.TrendStable}
	}

	window := history
	if len(window) > a.settings.TrendWindow {
		window = window[len(window)-a.settings.TrendWindow:]
	}
	series := make([]float64, len(window))
	for i, point := range window {
		series[i] = millis(point.MTTR)
	}

	slope := math.LinearSlope(series)
	direction := types.TrendStable
	switch {
	case slope < -a.settings.SlopeThreshold:
		direction = types.TrendImproving
	case slope > a.settings.SlopeThreshold:
		direction = types.TrendDegrading
	}

	last := series[len(series)-1]
	predict := func(days float64) float64 {
		predicted := last + slope*days
		if predicted < 0 {
			return 0
		}
		return predicted
	}

	return types.TrendAnalysis{
		TrendDirection: direction,
		ChangeRate:     slope,
		Predictions: []types.TrendPrediction{
			{Horizon: "one_week", PredictedMTTR: predict(7), Confidence: 0.7},
			{Horizon: "one_month", PredictedMTTR: predict(30), Confidence: 0.5},
		},
	}
}

// meanTimeToFailure is the mean gap between historical fault onsets, 0 when
// fewer than two runs are known
func meanTimeToFailure(history []types.MTTRDataPoint) time.Duration {
	if len(history) < 2 {
		return 0
	}
	var total time.Duration
	for i := 1; i < len(history); i++ {
		gap := history[i].Timestamp.Sub(history[i-1].Timestamp)
		if gap > 0 {
			total += gap
		}
	}
	return total / time.Duration(len(history)-1)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
