package google

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrMissingRefreshToken is the code reported when a refresh is requested for
// a credential pair that has no refresh token.
const ErrMissingRefreshToken = "missing_refresh_token"

// RefreshDeniedError is returned when the token endpoint rejects a refresh.
// The provider's error code and description are preserved for logging.
type RefreshDeniedError struct {
	// Code is the OAuth error code (e.g., "invalid_grant")
	Code string

	// Description is the provider's human-readable error description
	Description string

	// Status is the HTTP status of the token endpoint response (0 if none)
	Status int

	Err error
}

func (e *RefreshDeniedError) Error() string {
	msg := "token refresh denied"
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" [HTTP %d]", e.Status)
	}
	return msg
}

func (e *RefreshDeniedError) Unwrap() error {
	return e.Err
}

// IsRefreshDenied reports whether err is, or wraps, a *RefreshDeniedError.
func IsRefreshDenied(err error) bool {
	var denied *RefreshDeniedError
	return errors.As(err, &denied)
}

// refreshDenied converts a token endpoint failure into a *RefreshDeniedError.
// It returns nil when err did not come from an HTTP response.
func refreshDenied(err error) *RefreshDeniedError {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return nil
	}

	denied := &RefreshDeniedError{
		Code:        re.ErrorCode,
		Description: re.ErrorDescription,
		Err:         err,
	}
	if re.Response != nil {
		denied.Status = re.Response.StatusCode
	}
	return denied
}

// IsUnauthorized returns true if the error indicates invalid credentials.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsForbidden returns true if the error indicates insufficient permissions.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsRateLimited returns true if the error indicates rate limiting, either by
// the provider or by a local backoff window.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrBackoff) || hasStatus(err, http.StatusTooManyRequests)
}

// RetryAfter returns the delay the provider asked for in the Retry-After
// header of err, or 0 when there is none. Both delta-seconds and HTTP-date
// forms are understood.
func RetryAfter(err error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0
	}

	v := strings.TrimSpace(gerr.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}

func hasStatus(err error, code int) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == code
	}
	return false
}
