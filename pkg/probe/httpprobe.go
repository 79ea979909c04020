package probe

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// HealthStatus is the JSON body the target's health and metrics endpoints
// may return. Every field is optional, an empty body still yields a usable
// probe result.
type HealthStatus struct {
	Status         string  `json:"status"`
	ErrorRate      float64 `json:"error_rate"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	Throughput     float64 `json:"throughput"`
	Degraded       bool    `json:"degraded"`
	Retries        int     `json:"retries"`
	Restarts       int     `json:"restarts"`
	OpenCircuits   int     `json:"open_circuits"`
	MemoryBytes    uint64  `json:"memory_bytes"`
	CPUPercent     float64 `json:"cpu_percent"`
	Consistent     *bool   `json:"consistent,omitempty"`
}

// Result is one probe observation. Probe failures are part of the result,
// never an error: the target failing is the experiment's subject.
type Result struct {
	Endpoint     string
	Timestamp    time.Time
	StatusCode   int
	ResponseTime time.Duration
	Success      bool
	Status       HealthStatus
	HasBody      bool
	Err          string
}

// TriggerHTTPProbe sends a GET to the given URL, measures the round trip and
// parses the health body when one is present
func TriggerHTTPProbe(client *http.Client, url string) Result {
	result := Result{
		Endpoint:  url,
		Timestamp: time.Now(),
	}

	start := time.Now()
	resp, err := client.Get(url)
	result.ResponseTime = time.Since(start)

	if err != nil {
		result.Err = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || len(body) == 0 {
		return result
	}
	if err := json.Unmarshal(body, &result.Status); err == nil {
		result.HasBody = true
	}
	return result
}

// Degraded reports whether the probe observed a degraded target: transport
// error, timeout, non-2xx status, or an error rate past the threshold
func (r Result) Degraded(errorRateThreshold float64) bool {
	if r.Err != "" || !r.Success {
		return true
	}
	if r.HasBody && r.Status.ErrorRate >= errorRateThreshold {
		return true
	}
	return false
}
