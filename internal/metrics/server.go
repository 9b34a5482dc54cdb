// Package metrics serves the operational HTTP surface of a run: Prometheus
// metrics, health probes, and a JSON status snapshot.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress/sinks"
)

// StatusSource reports the current run state.
type StatusSource interface {
	Snapshot() sinks.Snapshot
}

// Server exposes /metrics, /healthz, /readyz and /v1/status.
type Server struct {
	router  chi.Router
	reg     *prometheus.Registry
	status  StatusSource
	logger  *zap.Logger
	httpReq *httpCollectors

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	ready    bool
}

// NewServer registers HTTP collectors on reg and builds the router. status
// may be nil, in which case /v1/status returns 404.
func NewServer(reg *prometheus.Registry, status StatusSource, logger *zap.Logger) (*Server, error) {
	if reg == nil {
		return nil, errors.New("metrics registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	collectors, err := newHTTPCollectors(reg)
	if err != nil {
		return nil, err
	}
	s := &Server{
		reg:     reg,
		status:  status,
		logger:  logger.Named("metrics"),
		httpReq: collectors,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.instrumentMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/v1/status", s.runStatus)

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady flips the /readyz answer.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// Start listens on addr and serves in the background. Listen errors are
// returned synchronously.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("metrics server already started")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the HTTP server gracefully. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) runStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusNotFound, "status not available")
		return
	}
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
