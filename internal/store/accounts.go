package store

import (
	"context"
	"fmt"

	"github.com/teemow/dayboard/internal/calendar"
)

// SaveUser stores or updates a user together with their primary account token.
// CalendarConnected is set whenever a token is supplied. Without a token the
// stored token and connection flag are left as they are, and so are an email
// or account id that u leaves empty.
func (s *Store) SaveUser(ctx context.Context, u calendar.User) error {
	if u.Account.Token == nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (id, email, google_calendar_connected, google_account_id)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				email = COALESCE(NULLIF(excluded.email, ''), email),
				google_calendar_connected = MAX(google_calendar_connected, excluded.google_calendar_connected),
				google_account_id = COALESCE(NULLIF(excluded.google_account_id, ''), google_account_id),
				updated_at = CURRENT_TIMESTAMP
		`, u.ID, u.Email, u.CalendarConnected, u.Account.ProviderAccountID)
		if err != nil {
			return unavailable("saving user", err)
		}
		return nil
	}

	access, refresh, expiry := tokenColumns(u.Account.Token)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, google_calendar_connected, google_account_id, access_token, refresh_token, token_expiry)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = COALESCE(NULLIF(excluded.email, ''), email),
			google_calendar_connected = 1,
			google_account_id = COALESCE(NULLIF(excluded.google_account_id, ''), google_account_id),
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			updated_at = CURRENT_TIMESTAMP
	`, u.ID, u.Email, u.Account.ProviderAccountID, access, refresh, expiry)
	if err != nil {
		return unavailable("saving user", err)
	}
	return nil
}

// SaveAccount stores or updates a secondary account of userID.
func (s *Store) SaveAccount(ctx context.Context, userID string, a calendar.ConnectedAccount) error {
	if a.ID == "" {
		return fmt.Errorf("account id is required")
	}
	access, refresh, expiry := tokenColumns(a.Token)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connected_accounts (id, user_id, provider_account_id, email, access_token, refresh_token, token_expiry)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_account_id = excluded.provider_account_id,
			email = excluded.email,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			updated_at = CURRENT_TIMESTAMP
	`, a.ID, userID, nullString(a.ProviderAccountID), a.Email, access, refresh, expiry)
	if err != nil {
		return unavailable("saving account", err)
	}
	return nil
}

// DeleteAccount unlinks a secondary account. Unknown ids are not an error.
func (s *Store) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM connected_accounts WHERE user_id = ? AND id = ?", userID, accountID); err != nil {
		return unavailable("deleting account", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM user_calendars WHERE user_id = ? AND account_id = ?", userID, accountID); err != nil {
		return unavailable("deleting account calendars", err)
	}
	return nil
}

// SaveCalendar stores or updates a calendar subscription of userID.
// An empty AccountID binds the calendar to the user's primary account.
func (s *Store) SaveCalendar(ctx context.Context, userID string, c calendar.UserCalendar) error {
	if c.CalendarID == "" {
		return fmt.Errorf("calendar id is required")
	}
	if c.AccountID == "" {
		c.AccountID = userID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_calendars (user_id, account_id, calendar_id, name, color, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, calendar_id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			enabled = excluded.enabled
	`, userID, c.AccountID, c.CalendarID, c.Name, c.Color, c.Enabled)
	if err != nil {
		return unavailable("saving calendar", err)
	}
	return nil
}
