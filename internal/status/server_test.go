package status

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mskumargvd/arushi-cloud/internal/logging"
	"github.com/mskumargvd/arushi-cloud/internal/metrics"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

type stubSupervisor struct {
	state models.ConnectionState
	depth int
	err   string
}

func (s stubSupervisor) Identity() models.AgentIdentity {
	return models.AgentIdentity{ID: "agent-1", Platform: models.PlatformFreeBSD, Hostname: "fw01"}
}
func (s stubSupervisor) State() models.ConnectionState { return s.state }
func (s stubSupervisor) BufferDepth() int              { return s.depth }
func (s stubSupervisor) LastError() string             { return s.err }

type stubBlocked []string

func (b stubBlocked) List() []string { return b }

func TestHealthz(t *testing.T) {
	srv := NewServer("", stubSupervisor{}, nil, "live", nil, logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestStatusReport(t *testing.T) {
	sup := stubSupervisor{state: models.StateDisconnected, depth: 42, err: "dial tcp: connection refused"}
	srv := NewServer("", sup, stubBlocked{"roblox", "tiktok"}, "synthetic", nil, logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "agent-1", report.Identity.ID)
	assert.Equal(t, models.StateDisconnected, report.State)
	assert.Equal(t, 42, report.BufferDepth)
	assert.Equal(t, "dial tcp: connection refused", report.LastError)
	assert.Equal(t, []string{"roblox", "tiktok"}, report.BlockedApps)
	assert.Equal(t, "synthetic", report.ThreatMode)
}

func TestStatusWithoutBlockList(t *testing.T) {
	srv := NewServer("", stubSupervisor{state: models.StateConnected}, nil, "live", nil, logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{}, body["blocked_apps"])
	assert.NotContains(t, body, "last_error")
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewMetrics()
	m.IncrementReconnects()
	m.SetBufferDepth(7)
	srv := NewServer("", stubSupervisor{}, nil, "live", m, logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "arushi_agent_reconnects_total 1")
	assert.Contains(t, body, "arushi_agent_offline_buffer_depth 7")
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer("", stubSupervisor{}, nil, "live", nil, logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), stubSupervisor{}, nil, "live", nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "ok")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
