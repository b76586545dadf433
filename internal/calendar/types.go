package calendar

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Role distinguishes a user's own account from accounts connected to it.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Source tags where an event came from.
type Source string

const (
	SourceGoogle Source = "google"
	SourceLocal  Source = "local"
)

// DefaultCalendarID is the provider alias for an account's default calendar.
const DefaultCalendarID = "primary"

// ConnectedAccount is one OAuth-linked Google account.
//
// The primary account's tokens live on the user record and its ID is the
// user's ID; secondary accounts are rows of their own.
type ConnectedAccount struct {
	ID string

	// ProviderAccountID is Google's subject id for the account
	ProviderAccountID string

	// Email is the known address of the account, if any. For secondary
	// accounts it is resolved lazily when empty.
	Email string

	Token *oauth2.Token
	Role  Role
}

// HasUsableToken reports whether the account can be queried at all.
func (a ConnectedAccount) HasUsableToken() bool {
	return a.Token != nil && a.Token.AccessToken != ""
}

// UserCalendar is a user's subscription to one calendar of one account.
// (AccountID, CalendarID) is unique.
type UserCalendar struct {
	AccountID  string
	CalendarID string
	Name       string
	Color      string
	Enabled    bool
}

// User is the owner of an aggregation.
type User struct {
	ID    string
	Email string

	// CalendarConnected is set once the user has linked Google Calendar,
	// whether or not a token is still on file.
	CalendarConnected bool

	// Account is the user's primary account; its Role is RolePrimary.
	Account ConnectedAccount
}

// Sources is everything the persistence layer knows about a user's calendars.
type Sources struct {
	User      User
	Calendars []UserCalendar

	// Accounts are the user's connected accounts other than the primary one.
	Accounts []ConnectedAccount
}

// CalendarContext is one (account, calendar) pair to fetch.
type CalendarContext struct {
	Account    ConnectedAccount
	CalendarID string
	Name       string
	Color      string
}

// Secondary reports whether the context belongs to a secondary account.
func (c CalendarContext) Secondary() bool {
	return c.Account.Role == RoleSecondary
}

// Window is the closed time interval events are fetched for.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window spanning days before and after now.
func NewWindow(now time.Time, days int) Window {
	span := time.Duration(days) * 24 * time.Hour
	return Window{Start: now.Add(-span), End: now.Add(span)}
}

// Validate checks that the window is non-empty and ordered.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.New("window start and end are required")
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("window end %s is before start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

// ParseWindow reads an RFC3339 timeMin/timeMax override. Both must be given
// or neither; with neither, def is returned.
func ParseWindow(timeMin, timeMax string, def Window) (Window, error) {
	if timeMin == "" && timeMax == "" {
		return def, nil
	}
	if timeMin == "" || timeMax == "" {
		return Window{}, fmt.Errorf("%w: timeMin and timeMax must be given together", ErrInvalidWindow)
	}

	start, err := time.Parse(time.RFC3339, timeMin)
	if err != nil {
		return Window{}, fmt.Errorf("%w: timeMin is not RFC3339", ErrInvalidWindow)
	}
	end, err := time.Parse(time.RFC3339, timeMax)
	if err != nil {
		return Window{}, fmt.Errorf("%w: timeMax is not RFC3339", ErrInvalidWindow)
	}

	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	return w, nil
}

// Event is the canonical calendar event returned to callers. It only lives
// for the duration of one response.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location,omitempty"`
	AllDay       bool      `json:"allDay"`
	Color        string    `json:"color,omitempty"`
	CalendarID   string    `json:"calendarId"`
	CalendarName string    `json:"calendarName"`
	Source       Source    `json:"source"`
}
