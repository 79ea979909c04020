package procctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/log"
)

// TraceParentHeader carries the caller's marshalled span context so the
// agent can correlate its actions with the run's trace
const TraceParentHeader = "X-Trace-Parent"

// Client drives the process-control agent that can stop, kill and restart
// the services under test. The agent exposes a small HTTP surface next to
// the fault proxy.
type Client struct {
	baseURL     string
	http        *http.Client
	traceParent string
}

// ServiceStatus is the agent's view of one managed service
type ServiceStatus struct {
	Service  string `json:"service"`
	Running  bool   `json:"running"`
	PID      int    `json:"pid"`
	Restarts int    `json:"restarts"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetTraceParent attaches a marshalled span context to every following
// request, an empty value clears it
func (c *Client) SetTraceParent(traceParent string) {
	c.traceParent = traceParent
}

// Kill sends a kill request for the named service
func (c *Client) Kill(service string) error {
	log.Infof("[Chaos]: Killing service %v through the process agent", service)
	return c.post("/services/" + service + "/kill")
}

// Restart asks the agent to start the named service again
func (c *Client) Restart(service string) error {
	log.Infof("[Chaos]: Restarting service %v through the process agent", service)
	return c.post("/services/" + service + "/restart")
}

// Status fetches the current state of the named service
func (c *Client) Status(service string) (ServiceStatus, error) {
	var status ServiceStatus

	resp, err := c.http.Get(c.baseURL + "/services/" + service)
	if err != nil {
		return status, cerrors.FaultInjection{Target: service, Reason: fmt.Sprintf("process agent unreachable, %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return status, cerrors.FaultInjection{Target: service, Reason: "service not managed by the process agent"}
	}
	if resp.StatusCode != http.StatusOK {
		return status, cerrors.FaultInjection{Target: service, Reason: fmt.Sprintf("failed to fetch service status (status: %v)", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, cerrors.FaultInjection{Target: service, Reason: fmt.Sprintf("malformed service status, %v", err)}
	}
	return status, nil
}

func (c *Client) post(path string) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return cerrors.FaultInjection{Reason: fmt.Sprintf("malformed agent request, %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.traceParent != "" {
		req.Header.Set(TraceParentHeader, c.traceParent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cerrors.FaultInjection{Reason: fmt.Sprintf("process agent unreachable, %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return cerrors.FaultInjection{Reason: fmt.Sprintf("process agent rejected %v (status: %v)", path, resp.StatusCode)}
	}
	return nil
}
