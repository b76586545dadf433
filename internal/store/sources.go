package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/teemow/dayboard/internal/calendar"
)

var _ calendar.SourceStore = (*Store)(nil)
var _ calendar.TokenPersister = (*Store)(nil)

// LoadSources reads a user with their calendar subscriptions and secondary
// accounts.
func (s *Store) LoadSources(ctx context.Context, userID string) (*calendar.Sources, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	calendars, err := s.ListCalendars(ctx, userID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &calendar.Sources{User: *user, Calendars: calendars, Accounts: accounts}, nil
}

// GetUser returns the user with their primary account.
// It returns calendar.ErrUserRecordMissing when no such user exists.
func (s *Store) GetUser(ctx context.Context, userID string) (*calendar.User, error) {
	var (
		u               calendar.User
		connected       bool
		providerAccount string
		access, refresh sql.NullString
		expiry          sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, google_calendar_connected, google_account_id, access_token, refresh_token, token_expiry
		FROM users WHERE id = ?
	`, userID).Scan(&u.ID, &u.Email, &connected, &providerAccount, &access, &refresh, &expiry)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", userID, calendar.ErrUserRecordMissing)
		}
		return nil, unavailable("loading user", err)
	}

	u.CalendarConnected = connected
	u.Account = calendar.ConnectedAccount{
		ID:                u.ID,
		ProviderAccountID: providerAccount,
		Email:             u.Email,
		Token:             tokenFromColumns(access, refresh, expiry),
		Role:              calendar.RolePrimary,
	}
	return &u, nil
}

// ListCalendars returns every calendar subscription of the user.
func (s *Store) ListCalendars(ctx context.Context, userID string) ([]calendar.UserCalendar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, calendar_id, name, color, enabled
		FROM user_calendars WHERE user_id = ?
		ORDER BY created_at, calendar_id
	`, userID)
	if err != nil {
		return nil, unavailable("listing calendars", err)
	}
	defer rows.Close()

	var out []calendar.UserCalendar
	for rows.Next() {
		var c calendar.UserCalendar
		if err := rows.Scan(&c.AccountID, &c.CalendarID, &c.Name, &c.Color, &c.Enabled); err != nil {
			return nil, unavailable("scanning calendar", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("listing calendars", err)
	}
	return out, nil
}

// ListAccounts returns the user's secondary accounts.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]calendar.ConnectedAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_account_id, email, access_token, refresh_token, token_expiry
		FROM connected_accounts WHERE user_id = ? AND provider = 'google'
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, unavailable("listing accounts", err)
	}
	defer rows.Close()

	var out []calendar.ConnectedAccount
	for rows.Next() {
		var (
			a               calendar.ConnectedAccount
			providerAccount sql.NullString
			access, refresh sql.NullString
			expiry          sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &providerAccount, &a.Email, &access, &refresh, &expiry); err != nil {
			return nil, unavailable("scanning account", err)
		}
		a.ProviderAccountID = providerAccount.String
		a.Token = tokenFromColumns(access, refresh, expiry)
		a.Role = calendar.RoleSecondary
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("listing accounts", err)
	}
	return out, nil
}

// PersistRefreshedToken writes a refreshed token back to the row that owns
// it: the user row for the primary account, the account row otherwise.
func (s *Store) PersistRefreshedToken(ctx context.Context, account calendar.ConnectedAccount, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("no token to persist")
	}
	access, refresh, expiry := tokenColumns(tok)

	query := `
		UPDATE connected_accounts
		SET access_token = ?, refresh_token = COALESCE(?, refresh_token), token_expiry = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	if account.Role == calendar.RolePrimary {
		query = `
		UPDATE users
		SET access_token = ?, refresh_token = COALESCE(?, refresh_token), token_expiry = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	}

	res, err := s.db.ExecContext(ctx, query, access, refresh, expiry, account.ID)
	if err != nil {
		return unavailable("persisting token", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("persisting token: no %s account %s", account.Role, account.ID)
	}
	return nil
}
