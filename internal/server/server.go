package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/dayboard/internal/instrumentation"
)

const (
	// DefaultHTTPAddr is the default API listen address.
	DefaultHTTPAddr = ":8080"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// Config configures the API server.
type Config struct {
	Addr       string
	Aggregator EventAggregator
	Sessions   *Sessions
	// Health is optional; without it the probe endpoints are not mounted.
	Health  *HealthChecker
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// HTTPServer is the dayboard API server.
type HTTPServer struct {
	httpServer *http.Server
	health     *HealthChecker
	logger     *slog.Logger
}

// NewHTTPServer wires the API routes.
func NewHTTPServer(cfg Config) (*HTTPServer, error) {
	if cfg.Aggregator == nil {
		return nil, errors.New("aggregator is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("sessions are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultHTTPAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /calendar", requireSession(cfg.Sessions, cfg.Logger,
		NewCalendarHandler(cfg.Aggregator, cfg.Logger)))
	if cfg.Health != nil {
		cfg.Health.RegisterHealthEndpoints(mux)
	}

	return &HTTPServer{
		health: cfg.Health,
		logger: cfg.Logger,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           instrument(cfg.Metrics, mux),
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			IdleTimeout:       defaultIdleTimeout,
		},
	}, nil
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.httpServer.Addr
}

// Start listens on the configured address and serves until Shutdown.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server as draining and waits for in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.health != nil {
		s.health.SetShuttingDown()
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
