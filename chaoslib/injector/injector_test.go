package injector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/faultline/faultline-go/chaoslib/procctl"
	"github.com/faultline/faultline-go/chaoslib/toxiproxy"
	"github.com/faultline/faultline-go/pkg/clients"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// proxyMock records toxic lifecycle calls the way the toxiproxy API would
type proxyMock struct {
	mu      sync.Mutex
	added   []string
	removed []string
	failAdd bool
}

func (m *proxyMock) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/proxies/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			if m.failAdd {
				http.Error(w, "proxy not found", http.StatusNotFound)
				return
			}
			m.added = append(m.added, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			m.removed = append(m.removed, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	return mux
}

func (m *proxyMock) addedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.added)
}

func (m *proxyMock) removedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.removed)
}

func newTestClients(controlURL string) clients.ClientSets {
	return clients.ClientSets{
		Context:   context.Background(),
		Toxiproxy: toxiproxy.NewClient(controlURL, time.Second),
	}
}

func fixtureLatencyConfig() types.FaultConfiguration {
	return types.FaultConfiguration{
		Type:      types.FaultHighLatency,
		Proxy:     "bridge",
		Intensity: 0.8,
		Latency:   &types.LatencyParams{MaxLatency: 3 * time.Second},
	}
}

func TestInject_PartitionAppliesToxic(t *testing.T) {
	mock := &proxyMock{}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	inj := New(newTestClients(server.URL))
	handle, err := inj.Inject(context.Background(), types.FaultConfiguration{
		Type:      types.FaultNetworkPartition,
		Proxy:     "bridge",
		Intensity: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, handle)

	result := handle.Result()
	assert.True(t, result.Success)
	assert.Equal(t, types.FaultNetworkPartition, result.Type)
	assert.Equal(t, 1, mock.addedCount())

	require.NoError(t, inj.Remove(handle))
	assert.Equal(t, 1, mock.removedCount())
}

func TestInject_InvalidConfigurationRejected(t *testing.T) {
	inj := New(newTestClients("http://127.0.0.1:0"))

	_, err := inj.Inject(context.Background(), types.FaultConfiguration{
		Type:      types.FaultNetworkPartition,
		Proxy:     "bridge",
		Intensity: 1.5,
	})
	assert.Error(t, err)
}

func TestInject_TransportFailureAborts(t *testing.T) {
	mock := &proxyMock{failAdd: true}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	inj := New(newTestClients(server.URL))
	_, err := inj.Inject(context.Background(), types.FaultConfiguration{
		Type:      types.FaultNetworkPartition,
		Proxy:     "missing",
		Intensity: 1.0,
	})
	assert.Error(t, err)
}

func TestInject_CascadingSequenceRunsEverySubFault(t *testing.T) {
	mock := &proxyMock{}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	inj := New(newTestClients(server.URL))
	config := types.FaultConfiguration{
		Type: types.FaultCascadingSequence,
		Sequence: []types.SubFault{
			{
				Config:   fixtureLatencyConfig(),
				Delay:    0,
				Duration: 40 * time.Millisecond,
			},
			{
				Config: types.FaultConfiguration{
					Type:      types.FaultBandwidthLimit,
					Proxy:     "bridge",
					Intensity: 0.9,
					Bandwidth: &types.BandwidthParams{MaxRateKB: 1000},
				},
				Delay:    20 * time.Millisecond,
				Duration: 40 * time.Millisecond,
			},
		},
	}

	handle, err := inj.Inject(context.Background(), config)
	require.NoError(t, err)

	// wait until both sub-faults fired and expired on their own timers
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, inj.Remove(handle))
	assert.Equal(t, 2, mock.addedCount())
	assert.Equal(t, 2, mock.removedCount())
	assert.Empty(t, handle.Result().Errors)
}

func TestInject_LaterSubFaultFailureDoesNotAbort(t *testing.T) {
	mock := &proxyMock{}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	inj := New(newTestClients(server.URL))
	config := types.FaultConfiguration{
		Type: types.FaultCascadingSequence,
		Sequence: []types.SubFault{
			{Config: fixtureLatencyConfig(), Delay: 0, Duration: 30 * time.Millisecond},
			{
				Config: types.FaultConfiguration{
					Type:      types.FaultNetworkPartition,
					Proxy:     "bridge",
					Intensity: 1.0,
				},
				Delay:    10 * time.Millisecond,
				Duration: 30 * time.Millisecond,
			},
		},
	}

	handle, err := inj.Inject(context.Background(), config)
	require.NoError(t, err)

	// make the transport fail for the second sub-fault only
	mock.mu.Lock()
	mock.failAdd = true
	mock.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, inj.Remove(handle))

	result := handle.Result()
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

// agentMock stands in for the process-control agent
type agentMock struct {
	mu       sync.Mutex
	kills    int
	restarts int
	statuses int
	running  bool
}

func (m *agentMock) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/services/payments/kill", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.kills++
		m.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/services/payments/restart", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.restarts++
		m.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/services/payments", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.statuses++
		running := m.running
		m.mu.Unlock()
		fmt.Fprintf(w, `{"service":"payments","running":%v,"pid":42,"restarts":1}`, running)
	})
	return mux
}

func processKillConfig() types.FaultConfiguration {
	return types.FaultConfiguration{
		Type:      types.FaultProcessKill,
		Service:   "payments",
		Intensity: 1.0,
	}
}

func TestInject_ProcessKillRestartConfirmsStatus(t *testing.T) {
	agent := &agentMock{running: true}
	server := httptest.NewServer(agent.handler())
	defer server.Close()

	inj := New(clients.ClientSets{
		Context: context.Background(),
		Process: procctl.NewClient(server.URL, time.Second),
	})
	handle, err := inj.Inject(context.Background(), processKillConfig())
	require.NoError(t, err)
	require.NoError(t, inj.Remove(handle))

	agent.mu.Lock()
	defer agent.mu.Unlock()
	assert.Equal(t, 1, agent.kills)
	assert.Equal(t, 1, agent.restarts)
	assert.GreaterOrEqual(t, agent.statuses, 1)
}

func TestRemove_ProcessRestartNotConfirmed(t *testing.T) {
	agent := &agentMock{running: false}
	server := httptest.NewServer(agent.handler())
	defer server.Close()

	inj := New(clients.ClientSets{
		Context: context.Background(),
		Process: procctl.NewClient(server.URL, time.Second),
	})
	handle, err := inj.Inject(context.Background(), processKillConfig())
	require.NoError(t, err)

	// the service never reports running again, removal must surface that
	assert.Error(t, inj.Remove(handle))
	agent.mu.Lock()
	defer agent.mu.Unlock()
	assert.Equal(t, 1, agent.restarts)
	assert.Greater(t, agent.statuses, 1)
}

func TestRemove_Idempotent(t *testing.T) {
	mock := &proxyMock{}
	server := httptest.NewServer(mock.handler())
	defer server.Close()

	inj := New(newTestClients(server.URL))
	handle, err := inj.Inject(context.Background(), fixtureLatencyConfig())
	require.NoError(t, err)

	require.NoError(t, inj.Remove(handle))
	removed := mock.removedCount()

	require.NoError(t, inj.Remove(handle))
	assert.Equal(t, removed, mock.removedCount())
}
