package analyzer

import (
	"fmt"
	"sort"
	"time"

	"github.com/faultline/faultline-go/pkg/math"
	"github.com/faultline/faultline-go/pkg/types"
)

// recommendation categories
const (
	CategoryDetection  = "detection"
	CategoryAutomation = "automation"
	CategoryMonitoring = "monitoring"
	CategoryProcess    = "process"
	CategoryTraining   = "training"
)

// buildRecommendations derives actionable findings from the finished
// analysis. Each rule fires at most once.
func (a *Analyzer) buildRecommendations(result *types.MTTRAnalysisResult) []types.Recommendation {
	var recommendations []types.Recommendation
	mttrMillis := millis(result.MTTR)

	var detectionDuration, diagnosisDuration time.Duration
	manualActivities := 0
	phaseFailed := false
	for _, phase := range result.RecoveryPhases {
		switch phase.Phase {
		case types.PhaseDetection:
			detectionDuration = phase.Duration
		case types.PhaseDiagnosis:
			diagnosisDuration = phase.Duration
		}
		if !phase.Success {
			phaseFailed = true
		}
		for _, activity := range phase.Activities {
			if !activity.Automated {
				manualActivities++
			}
		}
	}

	if detectionDuration > 10*time.Second {
		recommendations = append(recommendations, types.Recommendation{
			Category:    CategoryDetection,
			Priority:    types.PriorityHigh,
			Description: fmt.Sprintf("failure detection took %v, tighten probe intervals and alerting thresholds", detectionDuration),
		})
	}

	if manualActivities > 2 {
		recommendations = append(recommendations, types.Recommendation{
			Category:            CategoryAutomation,
			Priority:            types.PriorityHigh,
			Description:         fmt.Sprintf("%d manual interventions were needed, automate the recovery runbook", manualActivities),
			ExpectedImprovement: float64(math.Adjustment(int(mttrMillis), 30)),
		})
	}

	if result.Benchmark.Ranking == types.RankingPoor || result.Benchmark.Ranking == types.RankingCritical {
		recommendations = append(recommendations, types.Recommendation{
			Category:            CategoryMonitoring,
			Priority:            types.PriorityCritical,
			Description:         fmt.Sprintf("recovery ranks %q against the benchmark thresholds, invest in monitoring coverage", result.Benchmark.Ranking),
			ExpectedImprovement: float64(math.Adjustment(int(mttrMillis), 40)),
		})
	}

	if result.MTTR > 0 && float64(diagnosisDuration) > 0.20*float64(result.MTTR) {
		recommendations = append(recommendations, types.Recommendation{
			Category:    CategoryProcess,
			Priority:    types.PriorityMedium,
			Description: fmt.Sprintf("diagnosis consumed %v of a %v recovery, streamline the triage process", diagnosisDuration, result.MTTR),
		})
	}

	if phaseFailed {
		recommendations = append(recommendations, types.Recommendation{
			Category:    CategoryTraining,
			Priority:    types.PriorityMedium,
			Description: "at least one recovery phase failed, run incident response drills against this scenario",
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		wi, wj := types.PriorityWeight(recommendations[i].Priority), types.PriorityWeight(recommendations[j].Priority)
		if wi != wj {
			return wi > wj
		}
		return recommendations[i].ExpectedImprovement > recommendations[j].ExpectedImprovement
	})
	return recommendations
}
