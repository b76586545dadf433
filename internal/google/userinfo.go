package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/dayboard/internal/instrumentation"
)

// UserInfoLookup resolves the email address of the account behind an access
// token.
type UserInfoLookup struct {
	httpClient *http.Client
	endpoint   string
	metrics    *instrumentation.Metrics
}

// UserInfoOption configures a UserInfoLookup.
type UserInfoOption func(*UserInfoLookup)

// WithUserInfoEndpoint overrides the Google API base URL.
func WithUserInfoEndpoint(endpoint string) UserInfoOption {
	return func(l *UserInfoLookup) { l.endpoint = endpoint }
}

// WithUserInfoMetrics records lookup results.
func WithUserInfoMetrics(m *instrumentation.Metrics) UserInfoOption {
	return func(l *UserInfoLookup) { l.metrics = m }
}

// NewUserInfoLookup creates a lookup that sends requests through httpClient.
func NewUserInfoLookup(httpClient *http.Client, opts ...UserInfoOption) *UserInfoLookup {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	l := &UserInfoLookup{httpClient: httpClient}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Email returns the email address of the account that owns tok.
func (l *UserInfoLookup) Email(ctx context.Context, tok *oauth2.Token) (string, error) {
	if tok == nil || tok.AccessToken == "" {
		l.metrics.RecordUserInfoLookup(ctx, instrumentation.LookupResultFailure)
		return "", errors.New("no access token")
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(AuthorizedClient(l.httpClient, tok))}
	if l.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(l.endpoint))
	}

	svc, err := oauth2api.NewService(ctx, clientOpts...)
	if err != nil {
		l.metrics.RecordUserInfoLookup(ctx, instrumentation.LookupResultFailure)
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		l.metrics.RecordUserInfoLookup(ctx, instrumentation.LookupResultFailure)
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	if info.Email == "" {
		l.metrics.RecordUserInfoLookup(ctx, instrumentation.LookupResultFailure)
		return "", errors.New("user info has no email")
	}

	l.metrics.RecordUserInfoLookup(ctx, instrumentation.LookupResultSuccess)
	return info.Email, nil
}
