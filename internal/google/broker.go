package google

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/logging"
)

// ExpiryLeeway is how long before its recorded expiry a token is already
// treated as expired.
const ExpiryLeeway = time.Minute

const (
	// refreshTimeout bounds a token endpoint call independently of the
	// requests waiting on it.
	refreshTimeout = 30 * time.Second

	// reuseWindow is how long the result of a refresh is handed to later
	// callers presenting the same refresh token.
	reuseWindow = 5 * time.Minute
)

// BrokerConfig holds the dependencies of a Broker.
type BrokerConfig struct {
	// OAuth is the client configuration used for refresh_token grants
	OAuth *oauth2.Config

	// HTTPClient is used for token endpoint calls (default: NewHTTPClient)
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// Now is the clock used for expiry checks (default: time.Now)
	Now func() time.Time
}

// Broker exchanges refresh tokens for access tokens.
//
// Simultaneous refreshes of the same refresh token are coalesced into a
// single token endpoint call, and a successful refresh is reused for a short
// while by callers that still hold the old refresh token. Concurrent requests
// for one user therefore cannot race a token rotation. A Broker is safe for
// concurrent use.
type Broker struct {
	config     *oauth2.Config
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	recent map[string]recentRefresh
}

type recentRefresh struct {
	tok *oauth2.Token
	at  time.Time
}

// NewBroker creates a Broker.
func NewBroker(cfg BrokerConfig) *Broker {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Broker{
		config:     cfg.OAuth,
		httpClient: cfg.HTTPClient,
		metrics:    cfg.Metrics,
		logger:     logging.WithOperation(cfg.Logger, "oauth.refresh"),
		now:        cfg.Now,
		recent:     make(map[string]recentRefresh),
	}
}

// Expired reports whether tok cannot be used as is. A token without a known
// expiry is assumed valid until the provider says otherwise.
func (b *Broker) Expired(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return true
	}
	if tok.Expiry.IsZero() {
		return false
	}
	return !b.now().Add(ExpiryLeeway).Before(tok.Expiry)
}

// ValidToken returns tok unchanged when it is still usable, or a refreshed
// token otherwise. refreshed reports whether a refresh took place; the caller
// is then responsible for persisting the returned token.
func (b *Broker) ValidToken(ctx context.Context, tok *oauth2.Token) (valid *oauth2.Token, refreshed bool, err error) {
	if !b.Expired(tok) {
		return tok, false, nil
	}

	valid, err = b.Refresh(ctx, tok)
	if err != nil {
		return nil, false, err
	}
	return valid, true, nil
}

// Refresh performs one refresh_token grant for tok. It never retries.
//
// The returned token carries the new access token and expiry. When the
// provider does not rotate the refresh token the previous one is kept.
// Rejections by the token endpoint are returned as *RefreshDeniedError.
func (b *Broker) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		b.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshResultDenied)
		return nil, &RefreshDeniedError{
			Code:        ErrMissingRefreshToken,
			Description: "no refresh token on file",
		}
	}

	refreshToken := tok.RefreshToken
	key := refreshKey(refreshToken)
	if reused := b.reuse(key, tok); reused != nil {
		b.logger.Debug("reusing recent token refresh")
		return reused, nil
	}

	// The call outlives any single waiter: a cancelled request must not fail
	// the other requests sharing the refresh.
	ch := b.group.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		fresh, err := b.refresh(rctx, refreshToken)
		if err != nil {
			return nil, err
		}
		b.remember(key, fresh)
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to refresh token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			b.logger.Debug("coalesced concurrent token refresh")
		}

		// Callers may mutate the token they get back; never share one pointer.
		out := *res.Val.(*oauth2.Token)
		return &out, nil
	}
}

// reuse returns a copy of the token a recent refresh of key produced, unless
// it has expired or is the very token the caller already holds.
func (b *Broker) reuse(key string, tok *oauth2.Token) *oauth2.Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.recent[key]
	if !ok || b.now().Sub(r.at) >= reuseWindow || b.Expired(r.tok) || r.tok.AccessToken == tok.AccessToken {
		return nil
	}
	out := *r.tok
	return &out
}

func (b *Broker) remember(key string, tok *oauth2.Token) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	for k, r := range b.recent {
		if now.Sub(r.at) >= reuseWindow {
			delete(b.recent, k)
		}
	}
	b.recent[key] = recentRefresh{tok: tok, at: now}
}

func (b *Broker) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	start := b.now()
	tok, err := b.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		if denied := refreshDenied(err); denied != nil {
			b.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshResultDenied)
			b.logger.Warn("token refresh denied",
				slog.String("oauth_error", denied.Code),
				slog.String("oauth_error_description", denied.Description),
				slog.Int("http_status", denied.Status))
			return nil, denied
		}

		b.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshResultError)
		b.logger.Warn("token refresh failed",
			slog.String("refresh_token", logging.SanitizeToken(refreshToken)),
			logging.Err(err))
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	b.metrics.RecordTokenRefresh(ctx, instrumentation.RefreshResultSuccess)
	b.logger.Debug("token refreshed",
		slog.Duration(logging.KeyDuration, b.now().Sub(start)),
		slog.Time("expiry", tok.Expiry))
	return tok, nil
}

func refreshKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}
