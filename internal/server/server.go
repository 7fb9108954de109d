// Package server is the front door: HTTP API, Slack ingress, and live
// WebSocket subscriptions over the record store and notification hub.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/triageops/triage/internal/hub"
	"github.com/triageops/triage/internal/launcher"
	"github.com/triageops/triage/internal/storage"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Config holds front door configuration
type Config struct {
	Addr     string
	Store    storage.Storage
	Hub      *hub.Hub
	Launcher *launcher.InProcess
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Server serves the HTTP API
type Server struct {
	addr     string
	store    storage.Storage
	hub      *hub.Hub
	launcher *launcher.InProcess
	logger   *slog.Logger
	metrics  *Metrics
}

// New creates a front door server
func New(cfg *Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if cfg.Launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Server{
		addr:     addr,
		store:    cfg.Store,
		hub:      cfg.Hub,
		launcher: cfg.Launcher,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Routes builds the request mux
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /issues", s.instrument("create_issue", s.handleCreateIssue))
	mux.HandleFunc("GET /issues", s.instrument("list_issues", s.handleListIssues))
	mux.HandleFunc("GET /issues/{id}", s.instrument("get_issue", s.handleGetIssue))
	mux.HandleFunc("GET /issues/{id}/tracking", s.instrument("get_tracking", s.handleGetTracking))
	mux.HandleFunc("GET /issues/{id}/messages", s.instrument("list_messages", s.handleListMessages))
	mux.HandleFunc("POST /issues/{id}/messages", s.instrument("post_message", s.handlePostMessage))
	mux.HandleFunc("GET /issues/{id}/ws", s.handleWebSocket)
	mux.HandleFunc("POST /slack/events", s.instrument("slack_events", s.handleSlackEvents))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	return mux
}

// Start runs the server until ctx is canceled, then drains connections
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("front door listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// instrument wraps a handler with request metrics
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		s.metrics.ObserveRequest(route, sw.status, time.Since(start))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes a bounded JSON request body
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// readJSONLoose decodes a bounded JSON request body without rejecting
// unknown fields. Slack envelopes carry far more fields than we declare.
func readJSONLoose(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

// httpStatusForError maps storage errors onto response codes
func httpStatusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrClaimConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
