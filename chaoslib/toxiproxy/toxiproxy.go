package toxiproxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/sirupsen/logrus"
)

// toxic stream directions
const (
	StreamDownstream = "downstream"
	StreamUpstream   = "upstream"
)

// toxic types understood by the proxy
const (
	ToxicLatency   = "latency"
	ToxicBandwidth = "bandwidth"
	ToxicTimeout   = "timeout"
)

// Client speaks the toxiproxy REST control surface. It is the only caller of
// the fault-injection transport.
type Client struct {
	baseURL string
	http    *http.Client
}

// Proxy is the wire shape of a proxy on the control surface
type Proxy struct {
	Name     string `json:"name"`
	Listen   string `json:"listen"`
	Upstream string `json:"upstream"`
	Enabled  bool   `json:"enabled"`
}

// Toxic is the wire shape of a fault primitive applied to a proxied stream
type Toxic struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Stream     string                 `json:"stream"`
	Toxicity   float64                `json:"toxicity"`
	Attributes map[string]interface{} `json:"attributes"`
}

// NewClient initialises a control client with a bounded request timeout
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Proxies lists the proxies currently registered on the control surface
func (c *Client) Proxies() (map[string]Proxy, error) {
	resp, err := c.http.Get(c.baseURL + "/proxies")
	if err != nil {
		return nil, cerrors.FaultInjection{Reason: fmt.Sprintf("fault-injection transport unreachable, %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportError(resp, "", "list proxies")
	}

	proxies := map[string]Proxy{}
	if err := json.NewDecoder(resp.Body).Decode(&proxies); err != nil {
		return nil, cerrors.FaultInjection{Reason: fmt.Sprintf("malformed proxy listing, %v", err)}
	}
	return proxies, nil
}

// CreateProxy registers a proxy for the given listen/upstream pair
func (c *Client) CreateProxy(name, listen, upstream string) error {
	payload, err := json.Marshal(Proxy{Name: name, Listen: listen, Upstream: upstream, Enabled: true})
	if err != nil {
		return cerrors.FaultInjection{Target: name, Reason: err.Error()}
	}

	resp, err := c.http.Post(c.baseURL+"/proxies", "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return cerrors.FaultInjection{Target: name, Reason: fmt.Sprintf("fault-injection transport unreachable, %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return transportError(resp, name, "create proxy")
	}
	return nil
}

// AddToxic applies a toxic to the named proxy
func (c *Client) AddToxic(proxy string, toxic Toxic) error {
	payload, err := json.Marshal(toxic)
	if err != nil {
		return cerrors.FaultInjection{Target: proxy, Reason: err.Error()}
	}

	log.InfoWithValues("[Chaos]: Adding toxic to proxy", logrus.Fields{
		"Proxy":    proxy,
		"Toxic":    toxic.Name,
		"Type":     toxic.Type,
		"Stream":   toxic.Stream,
		"Toxicity": toxic.Toxicity,
	})

	resp, err := c.http.Post(c.baseURL+"/proxies/"+proxy+"/toxics", "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return cerrors.FaultInjection{Target: proxy, Reason: fmt.Sprintf("fault-injection transport unreachable, %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return cerrors.FaultInjection{Target: proxy, Reason: "proxy not found on the control surface"}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return transportError(resp, proxy, "add toxic")
	}
	return nil
}

// RemoveToxic removes a named toxic from the proxy
func (c *Client) RemoveToxic(proxy, toxicName string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/proxies/"+proxy+"/toxics/"+toxicName, nil)
	if err != nil {
		return cerrors.FaultInjection{Target: proxy, Reason: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cerrors.FaultInjection{Target: proxy, Reason: fmt.Sprintf("fault-injection transport unreachable, %v", err)}
	}
	defer resp.Body.Close()

	// a missing toxic means the fault is already gone, treat removal as done
	if resp.StatusCode == http.StatusNotFound {
		log.Warnf("toxic %v already absent from proxy %v", toxicName, proxy)
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return transportError(resp, proxy, "remove toxic")
	}
	return nil
}

// ResetState removes every toxic and re-enables all proxies
func (c *Client) ResetState() error {
	resp, err := c.http.Post(c.baseURL+"/reset", "application/json", nil)
	if err != nil {
		return cerrors.FaultInjection{Reason: fmt.Sprintf("fault-injection transport unreachable, %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return transportError(resp, "", "reset state")
	}
	return nil
}

func transportError(resp *http.Response, target, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return cerrors.FaultInjection{
		Target: target,
		Reason: fmt.Sprintf("failed to %s (status: %v): %s", operation, resp.StatusCode, bytes.TrimSpace(body)),
	}
}
