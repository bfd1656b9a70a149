// Package status serves the agent's local health, status and metrics
// endpoints on a loopback address.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mskumargvd/arushi-cloud/internal/metrics"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// Supervisor is the read-only view of the connection supervisor
type Supervisor interface {
	Identity() models.AgentIdentity
	State() models.ConnectionState
	BufferDepth() int
	LastError() string
}

// BlockedApps lists the locally blocked applications
type BlockedApps interface {
	List() []string
}

// Report is the body of GET /status
type Report struct {
	Identity    models.AgentIdentity   `json:"identity"`
	State       models.ConnectionState `json:"state"`
	BufferDepth int                    `json:"buffer_depth"`
	LastError   string                 `json:"last_error,omitempty"`
	BlockedApps []string               `json:"blocked_apps"`
	ThreatMode  string                 `json:"threat_mode"`
	StartedAt   time.Time              `json:"started_at"`
	Uptime      string                 `json:"uptime"`
}

// Server is the local status endpoint
type Server struct {
	addr       string
	supervisor Supervisor
	blocked    BlockedApps
	threatMode string
	metrics    *metrics.Metrics
	logger     *slog.Logger
	started    time.Time
	router     *mux.Router
}

// NewServer creates a status server. blocked and m may be nil.
func NewServer(addr string, supervisor Supervisor, blocked BlockedApps, threatMode string, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		addr:       addr,
		supervisor: supervisor,
		blocked:    blocked,
		threatMode: threatMode,
		metrics:    m,
		logger:     logger,
		started:    time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(s.logger), SecurityHeadersMiddleware, LoggingMiddleware(s.logger))

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/status", s.handleStatus).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	return router
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status listener: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Status endpoint listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	blocked := []string{}
	if s.blocked != nil {
		blocked = s.blocked.List()
	}

	writeJSON(w, http.StatusOK, Report{
		Identity:    s.supervisor.Identity(),
		State:       s.supervisor.State(),
		BufferDepth: s.supervisor.BufferDepth(),
		LastError:   s.supervisor.LastError(),
		BlockedApps: blocked,
		ThreatMode:  s.threatMode,
		StartedAt:   s.started.UTC(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
