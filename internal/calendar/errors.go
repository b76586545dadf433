package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/teemow/dayboard/internal/google"
)

// Errors that abort an aggregation. ErrNoUsableToken is the exception: it
// means there is nothing to fetch and callers report an empty result.
var (
	ErrUnauthenticated      = errors.New("not authenticated")
	ErrUserRecordMissing    = errors.New("user record not found")
	ErrDatastoreUnavailable = errors.New("datastore unavailable")
	ErrNoUsableToken        = errors.New("no usable calendar token")
)

// ErrInvalidWindow is returned by ParseWindow for a malformed override.
var ErrInvalidWindow = errors.New("invalid time window")

// FetchErrorKind classifies a per-source failure.
type FetchErrorKind string

const (
	KindUnauthorized  FetchErrorKind = "unauthorized"
	KindNotFound      FetchErrorKind = "not_found"
	KindRefreshDenied FetchErrorKind = "refresh_denied"
	KindRateLimited   FetchErrorKind = "rate_limited"
	KindTimeout       FetchErrorKind = "timeout"
	KindProvider      FetchErrorKind = "provider"
)

// FetchError is the failure of a single source. It is data, not control
// flow: aggregation collects FetchErrors next to the events it gathered.
type FetchError struct {
	CalendarID string
	AccountID  string
	Role       Role
	Kind       FetchErrorKind
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("calendar %s (account %s, %s): %s: %v", e.CalendarID, e.AccountID, e.Role, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func newFetchError(cc CalendarContext, err error) *FetchError {
	return &FetchError{
		CalendarID: cc.CalendarID,
		AccountID:  cc.Account.ID,
		Role:       cc.Account.Role,
		Kind:       classify(err),
		Err:        err,
	}
}

func classify(err error) FetchErrorKind {
	switch {
	case google.IsRefreshDenied(err):
		return KindRefreshDenied
	case google.IsUnauthorized(err):
		return KindUnauthorized
	case google.IsNotFound(err):
		return KindNotFound
	case google.IsRateLimited(err):
		return KindRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindProvider
	}
}
