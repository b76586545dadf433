package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/logging"
)

// DefaultLabelTTL is how long a resolved secondary-account email is cached.
const DefaultLabelTTL = time.Hour

// EmailLookup resolves the email address behind an access token.
type EmailLookup interface {
	Email(ctx context.Context, tok *oauth2.Token) (string, error)
}

// LabelCache caches account emails by account id.
type LabelCache interface {
	Get(ctx context.Context, accountID string) (string, bool)
	Set(ctx context.Context, accountID, email string)
}

// MemoryLabelCache is an in-process LabelCache with per-entry expiry.
type MemoryLabelCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]labelEntry
}

type labelEntry struct {
	email   string
	expires time.Time
}

// NewMemoryLabelCache creates an in-memory cache. A non-positive ttl means
// DefaultLabelTTL.
func NewMemoryLabelCache(ttl time.Duration) *MemoryLabelCache {
	if ttl <= 0 {
		ttl = DefaultLabelTTL
	}
	return &MemoryLabelCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]labelEntry),
	}
}

func (c *MemoryLabelCache) Get(_ context.Context, accountID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[accountID]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, accountID)
		return "", false
	}
	return e.email, true
}

func (c *MemoryLabelCache) Set(_ context.Context, accountID, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[accountID] = labelEntry{email: email, expires: c.now().Add(c.ttl)}
}

// Labeler resolves the email used to label a secondary account's events.
// Failures degrade to an empty email; they never fail a fetch.
type Labeler struct {
	lookup  EmailLookup
	cache   LabelCache
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewLabeler creates a Labeler. cache may be nil.
func NewLabeler(lookup EmailLookup, cache LabelCache, metrics *instrumentation.Metrics, logger *slog.Logger) *Labeler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Labeler{lookup: lookup, cache: cache, metrics: metrics, logger: logger}
}

// Email returns the account's email, or "" if it cannot be resolved.
func (l *Labeler) Email(ctx context.Context, account ConnectedAccount, tok *oauth2.Token) string {
	if account.Email != "" {
		return account.Email
	}
	if l == nil || l.lookup == nil {
		return ""
	}

	if l.cache != nil {
		if email, ok := l.cache.Get(ctx, account.ID); ok {
			l.metrics.RecordUserInfoLookup(ctx, instrumentation.LookupResultHit)
			return email
		}
	}

	email, err := l.lookup.Email(ctx, tok)
	if err != nil {
		l.logger.Debug("account email lookup failed",
			logging.Account(account.ID),
			logging.Err(err))
		return ""
	}

	l.logger.Debug("resolved account email", logging.Account(account.ID), logging.UserHash(email))

	if l.cache != nil {
		l.cache.Set(ctx, account.ID, email)
	}
	return email
}
