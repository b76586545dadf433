package google

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration for Calendar API calls.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit per account.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size per account.
	BurstSize int
}

// DefaultRateLimit is well below Google's per-user Calendar quota.
var DefaultRateLimit = RateLimitConfig{RequestsPerSecond: 5.0, BurstSize: 10}

// ErrBackoff is returned by Wait when the account's backoff window outlasts
// the caller's deadline.
var ErrBackoff = errors.New("rate limited by provider")

// defaultBackoff applies when a 429 carries no usable Retry-After.
const defaultBackoff = 60 * time.Second

// RateLimiter is a token bucket per account, with a backoff window that opens
// after the provider answers 429. The zero value is not usable; a nil
// *RateLimiter never blocks.
type RateLimiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	retryAt  map[string]time.Time
}

// NewRateLimiter creates a limiter. A zero cfg means DefaultRateLimit.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		cfg = DefaultRateLimit
	}
	return &RateLimiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		retryAt:  make(map[string]time.Time),
	}
}

// Wait blocks until a request for account can be made. Like rate.Limiter.Wait
// it fails at once when the wait would exceed the context deadline.
func (r *RateLimiter) Wait(ctx context.Context, account string) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	lim, ok := r.limiters[account]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.BurstSize)
		r.limiters[account] = lim
	}
	retryAt := r.retryAt[account]
	r.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		if deadline, ok := ctx.Deadline(); ok && deadline.Before(retryAt) {
			return fmt.Errorf("%w: account %s backs off for another %s", ErrBackoff, account, wait.Round(time.Second))
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lim.Wait(ctx)
}

// Backoff holds off further requests for account. A non-positive retryAfter
// uses the default of one minute.
func (r *RateLimiter) Backoff(account string, retryAfter time.Duration) {
	if r == nil {
		return
	}
	if retryAfter <= 0 {
		retryAfter = defaultBackoff
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAt[account] = time.Now().Add(retryAfter)
}
