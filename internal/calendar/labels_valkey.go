package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/teemow/dayboard/internal/logging"
)

// ValkeyConfig holds configuration for the Valkey label cache.
type ValkeyConfig struct {
	// Addr is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	Addr string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the Valkey database number (default: 0)
	DB int

	// KeyPrefix is the prefix for all keys (default: "dayboard:label:")
	KeyPrefix string

	// TTL of each entry (default: DefaultLabelTTL)
	TTL time.Duration
}

// ValkeyLabelCache is a LabelCache shared between dayboard replicas.
// Cache errors are logged and treated as misses.
type ValkeyLabelCache struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewValkeyLabelCache connects to Valkey.
func NewValkeyLabelCache(cfg ValkeyConfig, logger *slog.Logger) (*ValkeyLabelCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dayboard:label:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLabelTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Addr, err)
	}

	return &ValkeyLabelCache{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: logging.WithOperation(logger, "labelcache.valkey"),
	}, nil
}

func (c *ValkeyLabelCache) Get(ctx context.Context, accountID string) (string, bool) {
	email, err := c.client.Do(ctx, c.client.B().Get().Key(c.prefix+accountID).Build()).ToString()
	if err != nil {
		if !valkey.IsValkeyNil(err) {
			c.logger.Warn("label cache read failed", logging.Account(accountID), logging.Err(err))
		}
		return "", false
	}
	return email, true
}

func (c *ValkeyLabelCache) Set(ctx context.Context, accountID, email string) {
	cmd := c.client.B().Set().Key(c.prefix + accountID).Value(email).ExSeconds(int64(c.ttl / time.Second)).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("label cache write failed", logging.Account(accountID), logging.Err(err))
	}
}

// Close releases the underlying connections.
func (c *ValkeyLabelCache) Close() {
	c.client.Close()
}
