package toxiproxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newControlServer(t *testing.T) (*httptest.Server, *map[string][]string) {
	t.Helper()
	calls := map[string][]string{}

	mux := http.NewServeMux()
	mux.HandleFunc("/proxies", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"bridge":{"name":"bridge","listen":"127.0.0.1:21212","upstream":"127.0.0.1:8080","enabled":true}}`)
		case http.MethodPost:
			var proxy Proxy
			require.NoError(t, json.NewDecoder(r.Body).Decode(&proxy))
			calls["create"] = append(calls["create"], proxy.Name)
			w.WriteHeader(http.StatusCreated)
		}
	})
	mux.HandleFunc("/proxies/bridge/toxics", func(w http.ResponseWriter, r *http.Request) {
		var toxic Toxic
		require.NoError(t, json.NewDecoder(r.Body).Decode(&toxic))
		calls["add"] = append(calls["add"], toxic.Name)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/proxies/bridge/toxics/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		calls["remove"] = append(calls["remove"], r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/proxies/ghost/toxics", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "proxy not found", http.StatusNotFound)
	})
	mux.HandleFunc("/proxies/bridge/toxics/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "toxic not found", http.StatusNotFound)
	})
	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) {
		calls["reset"] = append(calls["reset"], r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &calls
}

func TestProxies_ListsControlSurface(t *testing.T) {
	server, _ := newControlServer(t)
	client := NewClient(server.URL, time.Second)

	proxies, err := client.Proxies()
	require.NoError(t, err)
	require.Contains(t, proxies, "bridge")
	assert.Equal(t, "127.0.0.1:8080", proxies["bridge"].Upstream)
	assert.True(t, proxies["bridge"].Enabled)
}

func TestCreateProxy(t *testing.T) {
	server, calls := newControlServer(t)
	client := NewClient(server.URL, time.Second)

	require.NoError(t, client.CreateProxy("bridge", "127.0.0.1:21212", "127.0.0.1:8080"))
	assert.Equal(t, []string{"bridge"}, (*calls)["create"])
}

func TestAddToxic(t *testing.T) {
	server, calls := newControlServer(t)
	client := NewClient(server.URL, time.Second)

	toxic := Toxic{
		Name:       "bridge_latency",
		Type:       ToxicLatency,
		Stream:     StreamDownstream,
		Toxicity:   1.0,
		Attributes: map[string]interface{}{"latency": 2400},
	}
	require.NoError(t, client.AddToxic("bridge", toxic))
	assert.Equal(t, []string{"bridge_latency"}, (*calls)["add"])
}

func TestAddToxic_UnknownProxy(t *testing.T) {
	server, _ := newControlServer(t)
	client := NewClient(server.URL, time.Second)

	err := client.AddToxic("ghost", Toxic{Name: "x", Type: ToxicTimeout, Stream: StreamDownstream})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeFaultInjection, cerrors.GetErrorType(err))
	assert.Contains(t, err.Error(), "proxy not found")
}

func TestRemoveToxic_MissingToxicIsNotAnError(t *testing.T) {
	server, _ := newControlServer(t)
	client := NewClient(server.URL, time.Second)

	assert.NoError(t, client.RemoveToxic("bridge", "gone"))
}

func TestRemoveToxic(t *testing.T) {
	server, calls := newControlServer(t)
	client := NewClient(server.URL, time.Second)

	require.NoError(t, client.RemoveToxic("bridge", "bridge_latency"))
	assert.Equal(t, []string{"/proxies/bridge/toxics/bridge_latency"}, (*calls)["remove"])
}

func TestResetState(t *testing.T) {
	server, calls := newControlServer(t)
	client := NewClient(server.URL, time.Second)

	require.NoError(t, client.ResetState())
	assert.Len(t, (*calls)["reset"], 1)
}

func TestTransportUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NewServeMux())
	server.Close()
	client := NewClient(server.URL, 200*time.Millisecond)

	err := client.AddToxic("bridge", Toxic{Name: "x", Type: ToxicTimeout, Stream: StreamDownstream})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeFaultInjection, cerrors.GetErrorType(err))
	assert.Contains(t, err.Error(), "unreachable")
}
