package environment

import (
	"os"
	"strconv"
	"time"

	"github.com/faultline/faultline-go/pkg/types"
)

// EngineDetails collects every tunable of the engine, populated from the
// environment with defaults
type EngineDetails struct {
	TargetBaseURL      string
	HealthPath         string
	MetricsPath        string
	RequestPath        string
	ConsistencyPath    string
	ToxiproxyURL       string
	ProcessAgentURL    string
	MonitorInterval    time.Duration
	ProbeInterval      time.Duration
	ProbeTimeout       time.Duration
	ConsecutiveSuccess int
	SafetyMultiplier   float64
	TeardownGrace      time.Duration
	DegradedErrorRate  float64
	OTelEndpoint       string
	OrganizationTarget time.Duration
	IndustryStandard   time.Duration
}

//GetENV fetches all the env variables for the engine
func GetENV(engineDetails *EngineDetails) {
	engineDetails.TargetBaseURL = Getenv("TARGET_BASE_URL", "http://localhost:8080")
	engineDetails.HealthPath = Getenv("TARGET_HEALTH_PATH", "/health")
	engineDetails.MetricsPath = Getenv("TARGET_METRICS_PATH", "/metrics")
	engineDetails.RequestPath = Getenv("TARGET_REQUEST_PATH", "/api/ping")
	engineDetails.ConsistencyPath = Getenv("TARGET_CONSISTENCY_PATH", "/consistency")
	engineDetails.ToxiproxyURL = Getenv("TOXIPROXY_URL", "http://localhost:8474")
	engineDetails.ProcessAgentURL = Getenv("PROCESS_AGENT_URL", "http://localhost:8475")
	engineDetails.MonitorInterval = durationEnv("MONITOR_INTERVAL_MS", 1000)
	engineDetails.ProbeInterval = durationEnv("PROBE_INTERVAL_MS", 500)
	engineDetails.ProbeTimeout = durationEnv("PROBE_TIMEOUT_MS", 2000)
	engineDetails.ConsecutiveSuccess, _ = strconv.Atoi(Getenv("CONSECUTIVE_SUCCESS", strconv.Itoa(types.DefaultConsecutiveSuccess)))
	engineDetails.SafetyMultiplier = floatEnv("RECOVERY_SAFETY_MULTIPLIER", 2.0)
	engineDetails.TeardownGrace = durationEnv("TEARDOWN_GRACE_MS", 30000)
	engineDetails.DegradedErrorRate = floatEnv("DEGRADED_ERROR_RATE", 0.5)
	engineDetails.OTelEndpoint = Getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	engineDetails.OrganizationTarget = durationEnv("ORG_TARGET_MTTR_MS", int(types.DefaultOrganizationTarget/time.Millisecond))
	engineDetails.IndustryStandard = durationEnv("INDUSTRY_STANDARD_MTTR_MS", int(types.DefaultIndustryStandard/time.Millisecond))
}

// Getenv fetch the env and set the default value, if any
func Getenv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return value
}

func durationEnv(key string, defaultMillis int) time.Duration {
	millis, err := strconv.Atoi(Getenv(key, strconv.Itoa(defaultMillis)))
	if err != nil || millis < 0 {
		millis = defaultMillis
	}
	return time.Duration(millis) * time.Millisecond
}

func floatEnv(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(Getenv(key, strconv.FormatFloat(defaultValue, 'f', -1, 64)), 64)
	if err != nil {
		return defaultValue
	}
	return value
}
