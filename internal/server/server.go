// Package server assembles the HTTP surface of the flight change API and
// runs it until its context is canceled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lowc1012/flight-change-api/internal/flights"
	"github.com/lowc1012/flight-change-api/internal/gate"
	"github.com/lowc1012/flight-change-api/internal/log"
	"github.com/lowc1012/flight-change-api/internal/ratelimiter"
	"github.com/lowc1012/flight-change-api/internal/store"
	"github.com/lowc1012/flight-change-api/internal/tracing"
)

const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"

	DefaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

type Config struct {
	Addr     string
	Store    store.WindowStore
	Limiter  ratelimiter.RateLimiter
	Verifier gate.Verifier
	Flights  *flights.Handler

	// AnnotateResponses adds the rate limit headers to admitted responses.
	AnnotateResponses bool

	// Registry receives the HTTP metrics and serves /metrics. A new
	// registry with the Go and process collectors is used when nil.
	Registry        *prometheus.Registry
	Version         string
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

type Server struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Limiter == nil || cfg.Verifier == nil || cfg.Flights == nil {
		return nil, errors.New("server requires a limiter, a verifier and a flights handler")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Logger()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	logger := cfg.Logger.Named("server")
	health := NewHealthChecker(cfg.Store, cfg.Version)

	r := chi.NewRouter()
	r.Use(
		tracing.Middleware,
		RequestID(cfg.Logger),
		MetricsMiddleware(NewMetrics(cfg.Registry)),
		Recover,
		func(next http.Handler) http.Handler {
			return gate.New(next, gate.Config{
				Prefix:            gate.DefaultPrefix,
				Verifier:          cfg.Verifier,
				Limiter:           cfg.Limiter,
				AnnotateResponses: cfg.AnnotateResponses,
				Logger:            cfg.Logger,
			})
		},
	)
	r.Method(http.MethodGet, healthPath, health.Handler())
	r.Method(http.MethodGet, metricsPath, promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{
		Registry: cfg.Registry,
	}))
	r.Mount(gate.DefaultPrefix, cfg.Flights.Routes())

	return &Server{
		addr:            cfg.Addr,
		handler:         r,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}, nil
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the root handler of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully,
// giving in-flight requests up to the shutdown timeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Server listening", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Graceful shutdown failed", zap.Error(err))
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
