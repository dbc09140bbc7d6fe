// Package server exposes the HTTP side of the bot: health, Prometheus
// metrics and the alert webhook.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/homepanel/homepanel/internal/metrics"
	"github.com/homepanel/homepanel/pkg/alerts"
	"github.com/homepanel/homepanel/pkg/types"
	"go.uber.org/zap"
)

const (
	// HookSource is the source name recorded for webhook alerts
	HookSource = "hook"
	// TokenHeader carries the shared webhook secret
	TokenHeader = "X-Hook-Token"

	maxBodyBytes = 16 << 10
)

// Server serves the HTTP endpoints
type Server struct {
	sink      alerts.AlertSink
	hookToken string
	logger    *zap.Logger
	http      *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHookToken requires the token on every webhook call
func WithHookToken(token string) Option {
	return func(s *Server) {
		s.hookToken = token
	}
}

// New creates a server listening on addr
func New(addr string, sink alerts.AlertSink, opts ...Option) *Server {
	s := &Server{
		sink:   sink,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("http")
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Post("/v1/alerts", s.handleAlert)
	return r
}

// Start blocks serving requests until Shutdown
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.hookToken == "" {
		return true
	}
	got := r.Header.Get(TokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.hookToken)) == 1
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.Warn("rejected webhook call", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var alert types.Alert
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&alert); err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert body")
		return
	}

	err := s.sink.Notify(r.Context(), HookSource, alert)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	case errors.Is(err, alerts.ErrUnknownKind), errors.Is(err, alerts.ErrEmptyAlert):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, alerts.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.logger.Error("webhook alert not delivered", zap.Error(err))
		writeError(w, http.StatusBadGateway, "alert not delivered")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
