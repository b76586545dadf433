package server

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is the type for context keys
type contextKey string

const (
	// userIDContextKey holds the authenticated user id of a request.
	userIDContextKey contextKey = "dayboard_user_id"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "dayboard_session"

// WithUserID returns a copy of ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey).(string)
	return id, ok && id != ""
}

// sessionToken extracts the raw session token from the request.
// The Authorization header takes precedence over the cookie.
func sessionToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}
