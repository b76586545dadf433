package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/logging"
	"github.com/teemow/dayboard/internal/server"
	"github.com/teemow/dayboard/internal/tools/calendar_tools"
)

// Transports accepted by serve.
const (
	transportHTTP  = "http"
	transportStdio = "stdio"
)

const shutdownTimeout = 30 * time.Second

// ServeConfig holds the serve-only settings.
type ServeConfig struct {
	Transport string
	HTTPAddr  string

	// SessionSecret verifies session tokens (HTTP transport only)
	SessionSecret string

	// User is the default user of MCP tool calls (stdio transport only)
	User string

	Metrics MetricsConfig
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		appConfig   AppConfig
		serveConfig ServeConfig
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the calendar API or MCP server",
		Long: `Serve the aggregated calendar view.

Supports multiple transport types:
  - http: GET /calendar plus /healthz and /readyz (default)
  - stdio: MCP server over standard input/output

HTTP Transport:
  Requests authenticate with a session token signed with --session-secret
  (or SESSION_SECRET), sent as a Bearer token or the dayboard_session cookie.
  Issue one with 'dayboard session --user <id>'.

Token Refresh:
  --google-client-id and --google-client-secret flags
  OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars.
  Without these, expired access tokens cannot be refreshed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadAppEnvVars(cmd, &appConfig)
			loadServeEnvVars(cmd, &serveConfig)
			return runServe(appConfig, serveConfig)
		},
	}

	bindAppFlags(cmd, &appConfig)
	cmd.Flags().StringVar(&serveConfig.Transport, "transport", transportHTTP, "Transport type: http or stdio")
	cmd.Flags().StringVar(&serveConfig.HTTPAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&serveConfig.SessionSecret, "session-secret", "", "HMAC secret for session tokens, at least 32 bytes. Can also use SESSION_SECRET env var.")
	cmd.Flags().StringVar(&serveConfig.User, "user", "", "Default user id for MCP tool calls (stdio transport). Can also use DAYBOARD_USER env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&serveConfig.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&serveConfig.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadServeEnvVars fills cfg from environment variables not overridden by flags.
func loadServeEnvVars(cmd *cobra.Command, cfg *ServeConfig) {
	envString(cmd, "http-addr", "HTTP_ADDR", &cfg.HTTPAddr)
	envString(cmd, "session-secret", "SESSION_SECRET", &cfg.SessionSecret)
	envString(cmd, "user", "DAYBOARD_USER", &cfg.User)
	envBool(cmd, "metrics-enabled", "METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString(cmd, "metrics-addr", "METRICS_ADDR", &cfg.Metrics.Addr)
}

func runServe(appConfig AppConfig, serveConfig ServeConfig) error {
	switch serveConfig.Transport {
	case transportHTTP, transportStdio:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", serveConfig.Transport, transportHTTP, transportStdio)
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	provider, err := newInstrumentation(shutdownCtx, true)
	if err != nil {
		return err
	}
	defer shutdownInstrumentation(provider)

	a, err := newApp(appConfig, provider.Metrics(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("error closing store", logging.Err(err))
		}
	}()

	if serveConfig.Transport == transportStdio {
		return runStdioServer(a, serveConfig, provider.Metrics(), logger)
	}
	return runHTTPServer(shutdownCtx, a, serveConfig, provider, logger)
}

func runStdioServer(a *app, serveConfig ServeConfig, metrics *instrumentation.Metrics, logger *slog.Logger) error {
	mcpSrv := mcpserver.NewMCPServer("dayboard", version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := calendar_tools.RegisterCalendarTools(mcpSrv, calendar_tools.Deps{
		Aggregator:    a.aggregator,
		Sources:       a.store,
		Defaults:      a.defaults,
		DefaultUserID: serveConfig.User,
		Metrics:       metrics,
		Logger:        logger,
	}); err != nil {
		return fmt.Errorf("failed to register Calendar tools: %w", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, a *app, serveConfig ServeConfig, provider *instrumentation.Provider, logger *slog.Logger) error {
	sessions, err := server.NewSessions(serveConfig.SessionSecret, server.DefaultSessionTTL)
	if err != nil {
		return fmt.Errorf("invalid session configuration: %w", err)
	}

	health := server.NewHealthChecker(a.store)
	apiServer, err := server.NewHTTPServer(server.Config{
		Addr:       serveConfig.HTTPAddr,
		Aggregator: a.aggregator,
		Sessions:   sessions,
		Health:     health,
		Metrics:    provider.Metrics(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if serveConfig.Metrics.Enabled && provider.Enabled() && provider.PrometheusEnabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    serveConfig.Metrics.Addr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	serverDone := make(chan error, 2)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}()
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverDone <- fmt.Errorf("metrics server stopped with error: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serverDone:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(stopCtx); err != nil {
		logger.Error("error shutting down HTTP server", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(stopCtx); err != nil {
			logger.Error("error shutting down metrics server", logging.Err(err))
		}
	}

	return runErr
}
