package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/teemow/dayboard/internal/calendar"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite-backed persistence for users, their connected accounts
// and their calendar subscriptions.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns ~/.dayboard/dayboard.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".dayboard", "dayboard.db"), nil
}

// Open opens (and migrates) the database at path. An empty path means
// DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrationsFS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// migrate applies every embedded NNN_name.up.sql newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// unavailable marks err as a datastore failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, calendar.ErrDatastoreUnavailable, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// tokenColumns splits tok into its nullable columns.
func tokenColumns(tok *oauth2.Token) (access, refresh sql.NullString, expiry sql.NullInt64) {
	if tok == nil {
		return
	}
	access = nullString(tok.AccessToken)
	refresh = nullString(tok.RefreshToken)
	if !tok.Expiry.IsZero() {
		expiry = sql.NullInt64{Int64: tok.Expiry.Unix(), Valid: true}
	}
	return
}

// tokenFromColumns is the inverse of tokenColumns. It returns nil when no
// token is on file.
func tokenFromColumns(access, refresh sql.NullString, expiry sql.NullInt64) *oauth2.Token {
	if access.String == "" && refresh.String == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken:  access.String,
		RefreshToken: refresh.String,
		TokenType:    "Bearer",
	}
	if expiry.Valid {
		tok.Expiry = time.Unix(expiry.Int64, 0).UTC()
	}
	return tok
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
