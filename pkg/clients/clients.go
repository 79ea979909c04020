package clients

import (
	"context"
	"net/http"

	"github.com/faultline/faultline-go/chaoslib/procctl"
	"github.com/faultline/faultline-go/chaoslib/toxiproxy"
	"github.com/faultline/faultline-go/pkg/environment"
)

// TargetClient reaches the system under test over HTTP
type TargetClient struct {
	BaseURL         string
	HealthPath      string
	MetricsPath     string
	RequestPath     string
	ConsistencyPath string
	HTTP            *http.Client
}

// HealthURL returns the absolute URL of the default health endpoint
func (t *TargetClient) HealthURL() string {
	return t.BaseURL + t.HealthPath
}

// MetricsURL returns the absolute URL of the metrics endpoint
func (t *TargetClient) MetricsURL() string {
	return t.BaseURL + t.MetricsPath
}

// RequestURL returns the absolute URL of the request-path probe endpoint
func (t *TargetClient) RequestURL() string {
	return t.BaseURL + t.RequestPath
}

// ConsistencyURL returns the absolute URL of a named consistency check
func (t *TargetClient) ConsistencyURL(name string) string {
	return t.BaseURL + t.ConsistencyPath + "/" + name
}

// ClientSets is for collecting all the engine's external clients
type ClientSets struct {
	Context   context.Context
	Target    *TargetClient
	Toxiproxy *toxiproxy.Client
	Process   *procctl.Client
}

// GenerateClientSets builds the client set from the engine configuration
func (clientSets *ClientSets) GenerateClientSets(engineDetails environment.EngineDetails) {
	clientSets.Context = context.Background()
	clientSets.Target = &TargetClient{
		BaseURL:         engineDetails.TargetBaseURL,
		HealthPath:      engineDetails.HealthPath,
		MetricsPath:     engineDetails.MetricsPath,
		RequestPath:     engineDetails.RequestPath,
		ConsistencyPath: engineDetails.ConsistencyPath,
		HTTP:            &http.Client{Timeout: engineDetails.ProbeTimeout},
	}
	clientSets.Toxiproxy = toxiproxy.NewClient(engineDetails.ToxiproxyURL, engineDetails.ProbeTimeout)
	clientSets.Process = procctl.NewClient(engineDetails.ProcessAgentURL, engineDetails.ProbeTimeout)
}
