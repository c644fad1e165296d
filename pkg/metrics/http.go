package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverReadTimeout       = 10 * time.Second
	serverWriteTimeout      = 10 * time.Second
	serverIdleTimeout       = 120 * time.Second
	serverShutdownTimeout   = 5 * time.Second
)

// Server exposes /metrics and the health probes over HTTP.
type Server struct {
	mux    *http.ServeMux
	health *HealthCheck
}

// ServerConfig selects what a Server exposes.
type ServerConfig struct {
	Collector        *Collector // nil uses Global()
	Version          string
	Namespace        string // Prometheus namespace, default "securechat"
	EnablePrometheus bool
	EnableHealth     bool
}

// NewServer builds the routes selected by cfg.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "securechat"
	}

	s := &Server{mux: http.NewServeMux()}
	if cfg.EnablePrometheus {
		s.mux.Handle("GET /metrics", NewPrometheusExporter(cfg.Collector, cfg.Namespace).Handler())
	}
	if cfg.EnableHealth {
		s.health = NewHealthCheck(cfg.Collector, cfg.Version)
		s.mux.Handle("GET /health", s.health.Handler())
		s.mux.Handle("GET /healthz", s.health.LivenessHandler())
		s.mux.Handle("GET /readyz", s.health.ReadinessHandler())
	}
	return s
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Health returns the health checker, or nil when health is disabled.
func (s *Server) Health() *HealthCheck {
	return s.health
}

// Serve runs on ln until ctx ends and then shuts down gracefully. A clean
// shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
