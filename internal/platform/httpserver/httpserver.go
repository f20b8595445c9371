package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"vcissuer/internal/platform/metrics"
	"vcissuer/pkg/platform/httputil"
	metadata "vcissuer/pkg/platform/middleware/metadata"
	"vcissuer/pkg/platform/middleware/requesttime"
)

// Config carries listener addresses and shutdown timing.
type Config struct {
	ListenAddr    string
	MetricsAddr   string
	DrainDuration time.Duration
	ShutdownGrace time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Server owns the API listener, the optional metrics listener and the
// readiness flag load balancers poll.
type Server struct {
	cfg     Config
	log     *slog.Logger
	isReady atomic.Bool

	router     chi.Router
	srv        *http.Server
	metricsSrv *http.Server

	checks []readinessCheck
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

const readinessCheckTimeout = 2 * time.Second

// New builds an HTTP server with the shared middleware chain installed.
// Callers mount module routes on Router() before Start.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{cfg: cfg, log: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(s.httpLogger)
	r.Use(m.Middleware)

	r.Get("/livez", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)
	if cfg.MetricsAddr == "" {
		r.Handle("/metrics", metrics.Handler())
	}

	s.router = r
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

// Router exposes the root router for route registration.
func (s *Server) Router() chi.Router {
	return s.router
}

// Handler returns the assembled HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

// AddReadinessCheck registers a dependency check run on every /readyz call.
// Register checks before Start.
func (s *Server) AddReadinessCheck(name string, check func(ctx context.Context) error) {
	s.checks = append(s.checks, readinessCheck{name: name, check: check})
}

// Start begins serving in the background and marks the server ready.
func (s *Server) Start() {
	if s.metricsSrv != nil {
		go func() {
			s.log.Info("starting metrics server", "listenAddress", s.cfg.MetricsAddr)
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("metrics server failed", "error", err)
			}
		}()
	}
	go func() {
		s.log.Info("starting HTTP server", "listenAddress", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "error", err)
		}
	}()
	s.isReady.Store(true)
}

// Shutdown flips readiness, waits out the drain period so load balancers
// stop routing, then gracefully stops both listeners.
func (s *Server) Shutdown(ctx context.Context) {
	s.isReady.Store(false)
	if s.cfg.DrainDuration > 0 {
		s.log.Info("draining before shutdown", "duration", s.cfg.DrainDuration)
		select {
		case <-time.After(s.cfg.DrainDuration):
		case <-ctx.Done():
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("graceful HTTP server shutdown failed", "error", err)
	} else {
		s.log.Info("HTTP server gracefully stopped")
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("graceful metrics server shutdown failed", "error", err)
		}
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
	defer cancel()
	failing := map[string]string{}
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			s.log.WarnContext(ctx, "readiness check failed", "check", c.name, "error", err)
			failing[c.name] = err.Error()
		}
	}
	if len(failing) > 0 {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failing": failing})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
