package validator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/clients"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/probe"
	"github.com/faultline/faultline-go/pkg/result"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/faultline/faultline-go/pkg/utils/retry"
	"github.com/sirupsen/logrus"
)

// Settings tunes the validator's polling behaviour
type Settings struct {
	ProbeInterval      time.Duration
	ProbeTimeout       time.Duration
	ConsecutiveSuccess int
	SafetyMultiplier   float64
	DegradedErrorRate  float64
	FastFailThreshold  time.Duration
}

func (s *Settings) applyDefaults() {
	if s.ProbeInterval <= 0 {
		s.ProbeInterval = 500 * time.Millisecond
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = 2 * time.Second
	}
	if s.ConsecutiveSuccess <= 0 {
		s.ConsecutiveSuccess = types.DefaultConsecutiveSuccess
	}
	if s.SafetyMultiplier <= 0 {
		s.SafetyMultiplier = 2.0
	}
	if s.DegradedErrorRate <= 0 {
		s.DegradedErrorRate = 0.5
	}
	if s.FastFailThreshold <= 0 {
		s.FastFailThreshold = 100 * time.Millisecond
	}
}

// Validator observes the target while a fault is active and measures its
// recovery once the fault is lifted
type Validator struct {
	clients  clients.ClientSets
	settings Settings

	mu               sync.Mutex
	watching         bool
	stopWatch        chan struct{}
	watchDone        chan struct{}
	faultStart       time.Time
	detectionAt      time.Time
	healthResults    []probe.Result
	requestResults   []probe.Result
	baselineRestarts int
	sawBaseline      bool
}

func New(clientSets clients.ClientSets, settings Settings) *Validator {
	settings.applyDefaults()
	return &Validator{
		clients:  clientSets,
		settings: settings,
	}
}

// Observe starts polling the scenario's health endpoints and the request
// path, beginning at fault-injection time. It returns immediately.
func (v *Validator) Observe(ctx context.Context, scenario types.ChaosScenario, faultStart time.Time) {
	v.mu.Lock()
	if v.watching {
		v.mu.Unlock()
		return
	}
	v.watching = true
	v.faultStart = faultStart
	v.detectionAt = time.Time{}
	v.healthResults = nil
	v.requestResults = nil
	v.sawBaseline = false
	v.stopWatch = make(chan struct{})
	v.watchDone = make(chan struct{})
	v.mu.Unlock()

	endpoints := scenario.Expectations.HealthCheckEndpoints
	if len(endpoints) == 0 {
		endpoints = []string{v.clients.Target.HealthPath}
	}

	go func() {
		defer close(v.watchDone)

		ticker := time.NewTicker(v.settings.ProbeInterval)
		defer ticker.Stop()

		v.watchOnce(endpoints)
		for {
			select {
			case <-ctx.Done():
				return
			case <-v.stopWatch:
				return
			case <-ticker.C:
				v.watchOnce(endpoints)
			}
		}
	}()
}

// watchOnce polls every health endpoint plus the request path once
func (v *Validator) watchOnce(endpoints []string) {
	for _, endpoint := range endpoints {
		result := probe.TriggerHTTPProbe(v.clients.Target.HTTP, v.resolveURL(endpoint))

		v.mu.Lock()
		v.healthResults = append(v.healthResults, result)
		if v.detectionAt.IsZero() && result.Degraded(v.settings.DegradedErrorRate) {
			v.detectionAt = result.Timestamp
			log.Infof("[Status]: Failure detected after %v", result.Timestamp.Sub(v.faultStart))
		}
		if result.Success && result.HasBody && !v.sawBaseline {
			v.baselineRestarts = result.Status.Restarts
			v.sawBaseline = true
		}
		v.mu.Unlock()
	}

	request := probe.TriggerHTTPProbe(v.clients.Target.HTTP, v.clients.Target.RequestURL())
	v.mu.Lock()
	v.requestResults = append(v.requestResults, request)
	v.mu.Unlock()
}

// Validate stops observation, measures recovery against the expectations and
// classifies the resilience mechanisms that activated. It never returns an
// error: a target that fails to recover is a finding, not a fault of the
// engine.
func (v *Validator) Validate(ctx context.Context, scenario types.ChaosScenario, faultResult types.FaultInjectionResult) *types.RecoveryValidationResult {
	v.stopObservation()

	v.mu.Lock()
	detectionAt := v.detectionAt
	faultStart := v.faultStart
	v.mu.Unlock()

	if faultStart.IsZero() {
		faultStart = faultResult.StartTime
	}

	report := &types.RecoveryValidationResult{}
	if !detectionAt.IsZero() {
		report.DetectionTime = detectionAt.Sub(faultStart)
	}

	removedAt := faultResult.EndTime
	if removedAt.IsZero() {
		removedAt = time.Now()
	}

	recovered, recoveryTime := v.measureRecovery(ctx, scenario, removedAt)
	report.RecoveryTime = recoveryTime
	if !recovered {
		err := cerrors.RecoveryTimeout{
			Target:  v.clients.Target.BaseURL,
			Elapsed: recoveryTime.String(),
			Reason:  "no sustained run of successful probes",
		}
		log.Error(err.Error())
		report.FailStep = result.RecoveryNotObserved
	}

	report.HealthCheckResults = v.checkRequiredEndpoints(scenario)
	report.MechanismsActivated = v.classifyMechanisms()
	report.SuccessRate = v.successRate()
	report.DataConsistencyResults = v.runConsistencyChecks(scenario)

	consistent := true
	for _, check := range report.DataConsistencyResults {
		if !check.Consistent {
			consistent = false
		}
	}

	expectations := scenario.Expectations
	report.Success = recovered &&
		report.RecoveryTime <= expectations.MaxRecoveryTime &&
		report.SuccessRate >= expectations.SuccessCriteria.MinimumSuccessRate &&
		consistent

	log.InfoWithValues("[Recovery]: Validation summary", logrus.Fields{
		"Success":       report.Success,
		"RecoveryTime":  report.RecoveryTime,
		"DetectionTime": report.DetectionTime,
		"SuccessRate":   report.SuccessRate,
		"Mechanisms":    strings.Join(report.MechanismsActivated, ","),
	})
	return report
}

// SafetyWindow is the absolute cap on recovery measurement for a scenario,
// independent of the scenario's own duration
func (v *Validator) SafetyWindow(scenario types.ChaosScenario) time.Duration {
	window := time.Duration(float64(scenario.Expectations.MaxRecoveryTime) * v.settings.SafetyMultiplier)
	if window <= 0 {
		window = 30 * time.Second
	}
	return window
}

// stopObservation joins the watcher goroutine, safe to call repeatedly
func (v *Validator) stopObservation() {
	v.mu.Lock()
	if !v.watching {
		v.mu.Unlock()
		return
	}
	v.watching = false
	close(v.stopWatch)
	done := v.watchDone
	v.mu.Unlock()
	<-done
}

// measureRecovery polls the request path until the first run of N
// consecutive successes or the safety deadline expires
func (v *Validator) measureRecovery(ctx context.Context, scenario types.ChaosScenario, removedAt time.Time) (bool, time.Duration) {
	deadline := v.SafetyWindow(scenario)

	var runStart time.Time
	consecutive := 0

	for time.Since(removedAt) < deadline {
		if ctx.Err() != nil {
			break
		}
		result := probe.TriggerHTTPProbe(v.clients.Target.HTTP, v.clients.Target.RequestURL())

		v.mu.Lock()
		v.requestResults = append(v.requestResults, result)
		v.mu.Unlock()

		if result.Success {
			if consecutive == 0 {
				runStart = result.Timestamp
			}
			consecutive++
			if consecutive >= v.settings.ConsecutiveSuccess {
				recoveryTime := runStart.Sub(removedAt)
				if recoveryTime < 0 {
					recoveryTime = 0
				}
				log.Infof("[Recovery]: Service restored %v after fault removal", recoveryTime)
				return true, recoveryTime
			}
		} else {
			consecutive = 0
		}

		select {
		case <-ctx.Done():
			return false, time.Since(removedAt)
		case <-time.After(v.settings.ProbeInterval):
		}
	}
	return false, time.Since(removedAt)
}

// checkRequiredEndpoints probes every required health endpoint once after
// recovery, probe failures degrade the result and are never propagated
func (v *Validator) checkRequiredEndpoints(scenario types.ChaosScenario) []types.HealthCheckResult {
	endpoints := scenario.Expectations.SuccessCriteria.RequiredHealthEndpoints
	if len(endpoints) == 0 {
		endpoints = scenario.Expectations.HealthCheckEndpoints
	}

	var results []types.HealthCheckResult
	for _, endpoint := range endpoints {
		var result probe.Result

		// a freshly recovered endpoint gets a few attempts before being
		// declared unhealthy
		_ = retry.Times(3).Wait(v.settings.ProbeInterval).Try(func(attempt uint) error {
			result = probe.TriggerHTTPProbe(v.clients.Target.HTTP, v.resolveURL(endpoint))
			if !result.Success {
				return cerrors.HealthCheck{Endpoint: endpoint, Reason: "probe unsuccessful"}
			}
			return nil
		})

		v.mu.Lock()
		v.healthResults = append(v.healthResults, result)
		v.mu.Unlock()

		results = append(results, types.HealthCheckResult{
			Endpoint:     endpoint,
			Healthy:      result.Success,
			StatusCode:   result.StatusCode,
			ResponseTime: result.ResponseTime,
			Error:        result.Err,
		})
	}
	return results
}

// classifyMechanisms matches the collected observations against the known
// resilience signatures
func (v *Validator) classifyMechanisms() []string {
	v.mu.Lock()
	health := append([]probe.Result(nil), v.healthResults...)
	requests := append([]probe.Result(nil), v.requestResults...)
	baselineRestarts := v.baselineRestarts
	v.mu.Unlock()

	var mechanisms []string
	add := func(name string) {
		for _, m := range mechanisms {
			if m == name {
				return
			}
		}
		mechanisms = append(mechanisms, name)
	}

	// circuit breaker: fast-fails instead of timeouts once the breaker opened,
	// or the target reports open circuits outright
	sawSlowFailure := false
	fastFails := 0
	for _, r := range requests {
		if r.Success {
			if r.HasBody && r.Status.OpenCircuits > 0 {
				add(types.MechanismCircuitBreaker)
			}
			continue
		}
		if r.ResponseTime >= v.settings.ProbeTimeout/2 {
			sawSlowFailure = true
		} else if r.ResponseTime < v.settings.FastFailThreshold && sawSlowFailure {
			fastFails++
		}
	}
	if fastFails >= 2 {
		add(types.MechanismCircuitBreaker)
	}
	for _, r := range health {
		if r.HasBody && r.Status.OpenCircuits > 0 {
			add(types.MechanismCircuitBreaker)
		}
	}

	// retry logic: the target reports a growing retry count
	lastRetries := -1
	for _, r := range health {
		if !r.HasBody {
			continue
		}
		if lastRetries >= 0 && r.Status.Retries > lastRetries {
			add(types.MechanismRetryLogic)
		}
		lastRetries = r.Status.Retries
	}

	// graceful degradation: successful responses carrying the reduced
	// functionality marker
	for _, r := range append(health, requests...) {
		if r.Success && r.HasBody && r.Status.Degraded {
			add(types.MechanismGracefulDegradation)
		}
	}

	// health-check recovery: a restart observed after repeated health failures
	consecutiveFailures := 0
	maxFailures := 0
	restarted := false
	for _, r := range health {
		if r.Success {
			if r.HasBody && r.Status.Restarts > baselineRestarts && maxFailures >= 2 {
				restarted = true
			}
			consecutiveFailures = 0
			continue
		}
		consecutiveFailures++
		if consecutiveFailures > maxFailures {
			maxFailures = consecutiveFailures
		}
	}
	if restarted {
		add(types.MechanismHealthCheckRecovery)
	}

	return mechanisms
}

// successRate is successful probes over all probes issued during the whole
// experiment window, not just after recovery
func (v *Validator) successRate() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	total := len(v.healthResults) + len(v.requestResults)
	if total == 0 {
		return 0
	}
	successes := 0
	for _, r := range v.healthResults {
		if r.Success {
			successes++
		}
	}
	for _, r := range v.requestResults {
		if r.Success {
			successes++
		}
	}
	return float64(successes) / float64(total)
}

// runConsistencyChecks runs each configured check once recovery is declared
func (v *Validator) runConsistencyChecks(scenario types.ChaosScenario) []types.ConsistencyResult {
	var results []types.ConsistencyResult
	for _, name := range scenario.Expectations.SuccessCriteria.DataConsistencyChecks {
		result := probe.TriggerHTTPProbe(v.clients.Target.HTTP, v.clients.Target.ConsistencyURL(name))

		check := types.ConsistencyResult{Name: name}
		switch {
		case result.Err != "":
			check.Detail = result.Err
		case !result.Success:
			check.Detail = "consistency endpoint unhealthy"
		case result.HasBody && result.Status.Consistent != nil:
			check.Consistent = *result.Status.Consistent
		default:
			check.Consistent = true
		}
		results = append(results, check)
	}
	return results
}

func (v *Validator) resolveURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return v.clients.Target.BaseURL + endpoint
}
