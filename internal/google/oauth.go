package google

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultHTTPTimeout bounds every outbound call made with NewHTTPClient.
const DefaultHTTPTimeout = 30 * time.Second

// NewOAuthConfig returns the OAuth2 configuration used to refresh tokens.
// Client credentials are sent in the request body, as Google expects for
// installed and web applications alike.
//
// tokenURL overrides Google's token endpoint when non-empty (tests).
func NewOAuthConfig(clientID, clientSecret, tokenURL string) *oauth2.Config {
	endpoint := google.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if tokenURL != "" {
		endpoint.TokenURL = tokenURL
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		Scopes:       CalendarScopes,
	}
}

// NewHTTPClient returns the base HTTP client for Google API calls.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		},
	}
}

// AuthorizedClient returns an HTTP client that sends tok as a bearer token on
// every request. It never refreshes, so an expired token surfaces as a 401.
func AuthorizedClient(base *http.Client, tok *oauth2.Token) *http.Client {
	var (
		transport http.RoundTripper = http.DefaultTransport
		timeout   time.Duration
	)
	if base != nil {
		if base.Transport != nil {
			transport = base.Transport
		}
		timeout = base.Timeout
	}

	bearer := &oauth2.Token{AccessToken: tok.AccessToken, TokenType: "Bearer"}
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(bearer),
			Base:   transport,
		},
	}
}
