package cerrors

import "fmt"

type Generic struct {
	Phase  string
	Reason string
}

func (e Generic) Error() string {
	if e.Phase == "" {
		return e.Reason
	}
	return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
}

func (e Generic) UserFriendly() bool {
	return true
}

func (e Generic) ErrorType() ErrorType {
	return ErrorTypeGeneric
}

// FaultInjection is fatal for a run: the fault transport could not apply or
// remove the requested fault (transport unreachable, unsupported fault type,
// target proxy not found)
type FaultInjection struct {
	Target    string
	FaultType string
	Reason    string
}

func (e FaultInjection) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("failed to apply '%s' fault, %s", e.FaultType, e.Reason)
	}
	return fmt.Sprintf("failed to apply '%s' fault on target '%s', %s", e.FaultType, e.Target, e.Reason)
}

func (e FaultInjection) UserFriendly() bool {
	return true
}

func (e FaultInjection) ErrorType() ErrorType {
	return ErrorTypeFaultInjection
}

// RecoveryTimeout is non-fatal: recovery was not observed inside the allowed
// window, the validation result is marked failed and analysis still runs
type RecoveryTimeout struct {
	Target  string
	Elapsed string
	Reason  string
}

func (e RecoveryTimeout) Error() string {
	if e.Elapsed == "" {
		return fmt.Sprintf("recovery not observed on target '%s', %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("recovery not observed on target '%s' after %s, %s", e.Target, e.Elapsed, e.Reason)
}

func (e RecoveryTimeout) UserFriendly() bool {
	return true
}

func (e RecoveryTimeout) ErrorType() ErrorType {
	return ErrorTypeRecoveryTimeout
}

// HealthCheck covers an individual probe failure, it is always recovered
// locally by treating the probe as degraded and never aborts a run
type HealthCheck struct {
	Endpoint string
	Reason   string
}

func (e HealthCheck) Error() string {
	return fmt.Sprintf("health check against '%s' failed, %s", e.Endpoint, e.Reason)
}

func (e HealthCheck) UserFriendly() bool {
	return true
}

func (e HealthCheck) ErrorType() ErrorType {
	return ErrorTypeHealthCheck
}

// Analysis covers malformed historical data, the analyzer falls back to a
// zeroed statistical analysis instead of aborting the run
type Analysis struct {
	Reason string
}

func (e Analysis) Error() string {
	return fmt.Sprintf("recovery analysis failed, %s", e.Reason)
}

func (e Analysis) UserFriendly() bool {
	return true
}

func (e Analysis) ErrorType() ErrorType {
	return ErrorTypeAnalysis
}

type Error struct {
	ErrorCode ErrorType
	Phase     string
	Reason    string
}

func (e Error) Error() string {
	if e.Phase == "" {
		return e.Reason
	}
	return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}
