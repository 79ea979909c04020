package procctl

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgent(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string

	mux := http.NewServeMux()
	mux.HandleFunc("/services/worker/kill", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "kill")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/services/worker/restart", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "restart")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/services/worker", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"service":"worker","running":true,"pid":4242,"restarts":2}`)
	})
	mux.HandleFunc("/services/ghost", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown service", http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &calls
}

func TestKillAndRestart(t *testing.T) {
	server, calls := newAgent(t)
	client := NewClient(server.URL, time.Second)

	require.NoError(t, client.Kill("worker"))
	require.NoError(t, client.Restart("worker"))
	assert.Equal(t, []string{"kill", "restart"}, *calls)
}

func TestStatus(t *testing.T) {
	server, _ := newAgent(t)
	client := NewClient(server.URL, time.Second)

	status, err := client.Status("worker")
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 4242, status.PID)
	assert.Equal(t, 2, status.Restarts)
}

func TestStatus_UnknownService(t *testing.T) {
	server, _ := newAgent(t)
	client := NewClient(server.URL, time.Second)

	_, err := client.Status("ghost")
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeFaultInjection, cerrors.GetErrorType(err))
}

func TestTraceParentHeaderForwarded(t *testing.T) {
	var header string
	mux := http.NewServeMux()
	mux.HandleFunc("/services/worker/kill", func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(TraceParentHeader)
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	client.SetTraceParent(`{"traceparent":"00-abc-def-01"}`)
	require.NoError(t, client.Kill("worker"))
	assert.Equal(t, `{"traceparent":"00-abc-def-01"}`, header)

	client.SetTraceParent("")
	require.NoError(t, client.Kill("worker"))
	assert.Empty(t, header)
}

func TestAgentUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NewServeMux())
	server.Close()
	client := NewClient(server.URL, 200*time.Millisecond)

	assert.Error(t, client.Kill("worker"))
}
