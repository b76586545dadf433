package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/dayboard/internal/calendar"
	"github.com/teemow/dayboard/internal/google"
	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/logging"
	"github.com/teemow/dayboard/internal/store"
)

// Label cache backends.
const (
	labelCacheMemory = "memory"
	labelCacheValkey = "valkey"
)

// AppConfig holds the settings shared by every command that aggregates events.
type AppConfig struct {
	// DBPath is the SQLite database file (default: ~/.dayboard/dayboard.db)
	DBPath string

	GoogleClientID     string
	GoogleClientSecret string

	WindowDays     int
	FetchTimeout   time.Duration
	MaxConcurrency int

	// LabelCache is the secondary-label cache backend: memory or valkey
	LabelCache string
	Valkey     ValkeyConfig
}

// ValkeyConfig holds configuration for the Valkey label cache backend.
type ValkeyConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the Valkey database number (default: 0)
	DB int
}

// bindAppFlags registers the shared flags on cmd.
func bindAppFlags(cmd *cobra.Command, cfg *AppConfig) {
	cmd.Flags().StringVar(&cfg.DBPath, "db", "", "SQLite database path (default: ~/.dayboard/dayboard.db). Can also use DAYBOARD_DB env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth Client ID used to refresh tokens. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret used to refresh tokens. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().IntVar(&cfg.WindowDays, "window-days", 30, "Days before and after now covered by the default time window")
	cmd.Flags().DurationVar(&cfg.FetchTimeout, "fetch-timeout", 15*time.Second, "Time limit for fetching one calendar, token refresh included")
	cmd.Flags().IntVar(&cfg.MaxConcurrency, "max-concurrency", 8, "Maximum number of calendars fetched at once per request")
	cmd.Flags().StringVar(&cfg.LabelCache, "label-cache", labelCacheMemory, "Cache for secondary account labels: memory or valkey. Can also use LABEL_CACHE env var.")
	cmd.Flags().StringVar(&cfg.Valkey.URL, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&cfg.Valkey.Password, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().IntVar(&cfg.Valkey.DB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")
}

// loadAppEnvVars fills cfg from environment variables.
// Environment variables only override flag values when the flag was not explicitly set.
func loadAppEnvVars(cmd *cobra.Command, cfg *AppConfig) {
	envString(cmd, "db", "DAYBOARD_DB", &cfg.DBPath)
	envString(cmd, "google-client-id", "GOOGLE_CLIENT_ID", &cfg.GoogleClientID)
	envString(cmd, "google-client-secret", "GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret)
	envString(cmd, "label-cache", "LABEL_CACHE", &cfg.LabelCache)
	envString(cmd, "valkey-url", "VALKEY_URL", &cfg.Valkey.URL)
	envString(cmd, "valkey-password", "VALKEY_PASSWORD", &cfg.Valkey.Password)

	if !cmd.Flags().Changed("valkey-db") {
		if dbStr := os.Getenv("VALKEY_DB"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				cfg.Valkey.DB = db
			}
		}
	}
}

// envString sets *dst from the environment variable env unless flag was set
// on the command line.
func envString(cmd *cobra.Command, flag, env string, dst *string) {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// envBool is envString for boolean flags.
func envBool(cmd *cobra.Command, flag, env string, dst *bool) {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return
	}
	if v := os.Getenv(env); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		} else {
			slog.Warn("ignoring invalid boolean environment variable", "name", env, "value", v)
		}
	}
}

// app is the aggregation pipeline assembled from an AppConfig.
type app struct {
	store      *store.Store
	aggregator *calendar.Aggregator
	defaults   calendar.Defaults
	valkey     *calendar.ValkeyLabelCache
}

// newApp opens the store and wires broker, labeler, fetcher and aggregator.
// The caller must Close the returned app.
func newApp(cfg AppConfig, metrics *instrumentation.Metrics, logger *slog.Logger) (*app, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		logger.Warn("Google client credentials not configured, expired tokens cannot be refreshed")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{store: st}

	var cache calendar.LabelCache
	switch cfg.LabelCache {
	case "", labelCacheMemory:
		cache = calendar.NewMemoryLabelCache(calendar.DefaultLabelTTL)
	case labelCacheValkey:
		a.valkey, err = calendar.NewValkeyLabelCache(calendar.ValkeyConfig{
			Addr:     cfg.Valkey.URL,
			Password: cfg.Valkey.Password,
			DB:       cfg.Valkey.DB,
		}, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to create label cache: %w", err)
		}
		cache = a.valkey
	default:
		_ = st.Close()
		return nil, fmt.Errorf("unsupported label cache: %s (supported: memory, valkey)", cfg.LabelCache)
	}

	httpClient := google.NewHTTPClient(0)
	broker := google.NewBroker(google.BrokerConfig{
		OAuth:      google.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, ""),
		HTTPClient: httpClient,
		Metrics:    metrics,
		Logger:     logger,
	})
	lookup := google.NewUserInfoLookup(httpClient, google.WithUserInfoMetrics(metrics))

	opts := calendar.Options{
		WindowDays:     cfg.WindowDays,
		FetchTimeout:   cfg.FetchTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	fetcher := calendar.NewFetcher(calendar.FetcherConfig{
		Broker:     broker,
		Persister:  st,
		Labeler:    calendar.NewLabeler(lookup, cache, metrics, logger),
		Limiter:    google.NewRateLimiter(google.DefaultRateLimit),
		HTTPClient: httpClient,
		Defaults:   opts.Defaults,
		Metrics:    metrics,
		Logger:     logger,
	})

	a.defaults = opts.Defaults
	a.aggregator = calendar.NewAggregator(st, fetcher, opts,
		calendar.WithMetrics(metrics),
		calendar.WithLogger(logger),
	)
	return a, nil
}

// Close releases the store and the label cache.
func (a *app) Close() error {
	if a.valkey != nil {
		a.valkey.Close()
	}
	return a.store.Close()
}

// newInstrumentation creates the OpenTelemetry provider. One-shot commands
// pass enabled=false so nothing is exported.
func newInstrumentation(ctx context.Context, enabled bool) (*instrumentation.Provider, error) {
	cfg := instrumentation.DefaultConfig()
	cfg.ServiceVersion = version
	if !enabled {
		cfg.Enabled = false
	}

	provider, err := instrumentation.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, nil
}

// shutdownInstrumentation flushes the provider, logging failures.
func shutdownInstrumentation(provider *instrumentation.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		slog.Error("error during instrumentation shutdown", logging.Err(err))
	}
}
