package result

import (
	"fmt"
	"strings"
	"time"

	"github.com/faultline/faultline-go/pkg/types"
	"github.com/kyokomi/emoji"
)

// fail steps recorded on ChaosExecutionResult, one per pipeline stage
const (
	ScenarioInvalid      = "[pre-chaos]: scenario failed validation"
	FaultInjectionFailed = "[chaos]: failed to apply the primary fault"
	FaultRemovalFailed   = "[post-chaos]: failed to remove the fault"
	RecoveryNotObserved  = "[recovery]: recovery not observed within the safety window"
	ScenarioTimedOut     = "[chaos]: scenario exceeded its hard deadline"
	ScenarioInterrupted  = "[chaos]: scenario aborted by signal"
)

// Verdict is the one-word outcome used in logs and summaries
func Verdict(result *types.ChaosExecutionResult) string {
	if result.Success {
		return "Pass" + emoji.Sprint(" :thumbsup:")
	}
	return "Fail" + emoji.Sprint(" :thumbsdown:")
}

// Summary renders a human-readable report of one run
func Summary(result *types.ChaosExecutionResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scenario %v (run %v): %v\n", result.ScenarioID, result.RunID, Verdict(result))
	fmt.Fprintf(&b, "  Window: %v -> %v (%v)\n", result.StartTime.Format(time.RFC3339), result.EndTime.Format(time.RFC3339), result.EndTime.Sub(result.StartTime).Round(time.Millisecond))

	if result.FailStep != "" {
		fmt.Fprintf(&b, "  FailStep: %v\n", result.FailStep)
	}
	if fault := result.FaultInjection; fault != nil {
		fmt.Fprintf(&b, "  Fault: %v intensity=%.2f injected=%v\n", fault.Type, fault.Intensity, fault.Success)
		for _, faultErr := range fault.Errors {
			fmt.Fprintf(&b, "    fault error: %v\n", faultErr)
		}
	}
	if recovery := result.RecoveryValidation; recovery != nil {
		fmt.Fprintf(&b, "  Recovery: success=%v detection=%v recovery=%v successRate=%.2f\n",
			recovery.Success, recovery.DetectionTime.Round(time.Millisecond), recovery.RecoveryTime.Round(time.Millisecond), recovery.SuccessRate)
		if len(recovery.MechanismsActivated) > 0 {
			fmt.Fprintf(&b, "  Mechanisms: %v\n", strings.Join(recovery.MechanismsActivated, ", "))
		}
	}
	if analysis := result.MTTRAnalysis; analysis != nil {
		fmt.Fprintf(&b, "  MTTR: %v (ranking %v, trend %v, availability %.3f)\n",
			analysis.MTTR.Round(time.Millisecond), analysis.Benchmark.Ranking, analysis.Trends.TrendDirection, analysis.Availability)
		for _, rec := range analysis.Recommendations {
			fmt.Fprintf(&b, "  Recommendation [%v/%v]: %v\n", rec.Priority, rec.Category, rec.Description)
		}
	}
	fmt.Fprintf(&b, "  Observations: %d, metric snapshots: %d\n", len(result.Observations), len(result.SystemMetrics))
	return b.String()
}
