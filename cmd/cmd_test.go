package cmd

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/dayboard/internal/calendar"
	"github.com/teemow/dayboard/internal/server"
	"github.com/teemow/dayboard/internal/store"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReadTokenFile(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantAccess  string
		wantRefresh string
		wantExpiry  bool
		wantErr     string
	}{
		{
			name:        "two fields",
			content:     "at-1 rt-1\n",
			wantAccess:  "at-1",
			wantRefresh: "rt-1",
		},
		{
			name:        "json",
			content:     `{"access_token":"at-2","refresh_token":"rt-2","expiry":"2026-03-01T12:00:00Z"}`,
			wantAccess:  "at-2",
			wantRefresh: "rt-2",
			wantExpiry:  true,
		},
		{
			name:        "json refresh only",
			content:     `{"refresh_token":"rt-3"}`,
			wantRefresh: "rt-3",
		},
		{
			name:    "one field",
			content: "at-only",
			wantErr: "expected two fields",
		},
		{
			name:    "empty json",
			content: `{}`,
			wantErr: "neither an access token nor a refresh token",
		},
		{
			name:    "broken json",
			content: `{"access_token":`,
			wantErr: "invalid token file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := readTokenFile(writeFile(t, "google.token", tt.content))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccess, tok.AccessToken)
			assert.Equal(t, tt.wantRefresh, tok.RefreshToken)
			assert.Equal(t, tt.wantExpiry, !tok.Expiry.IsZero())
		})
	}

	_, err := readTokenFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadAppEnvVars(t *testing.T) {
	t.Setenv("DAYBOARD_DB", "/env/dayboard.db")
	t.Setenv("GOOGLE_CLIENT_ID", "env-client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")
	t.Setenv("LABEL_CACHE", labelCacheValkey)
	t.Setenv("VALKEY_URL", "valkey:6379")
	t.Setenv("VALKEY_DB", "3")

	var cfg AppConfig
	cmd := &cobra.Command{Use: "test"}
	bindAppFlags(cmd, &cfg)
	require.NoError(t, cmd.Flags().Parse([]string{"--google-client-id", "flag-client", "--valkey-db", "1"}))

	loadAppEnvVars(cmd, &cfg)

	assert.Equal(t, "/env/dayboard.db", cfg.DBPath)
	assert.Equal(t, "flag-client", cfg.GoogleClientID, "flags win over the environment")
	assert.Equal(t, "env-secret", cfg.GoogleClientSecret)
	assert.Equal(t, labelCacheValkey, cfg.LabelCache)
	assert.Equal(t, "valkey:6379", cfg.Valkey.URL)
	assert.Equal(t, 1, cfg.Valkey.DB)
	assert.Equal(t, 30, cfg.WindowDays)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrency)
}

func TestLoadServeEnvVars(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		args        []string
		wantEnabled bool
	}{
		{name: "default", wantEnabled: true},
		{name: "env disables", env: "false", wantEnabled: false},
		{name: "invalid env ignored", env: "maybe", wantEnabled: true},
		{name: "flag wins", env: "false", args: []string{"--metrics-enabled=true"}, wantEnabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("METRICS_ENABLED", tt.env)
			t.Setenv("HTTP_ADDR", ":8181")

			cmd := newServeCmd()
			require.NoError(t, cmd.Flags().Parse(tt.args))

			cfg := ServeConfig{Transport: transportHTTP, HTTPAddr: server.DefaultHTTPAddr, Metrics: MetricsConfig{Enabled: true}}
			loadServeEnvVars(cmd, &cfg)

			assert.Equal(t, tt.wantEnabled, cfg.Metrics.Enabled)
			assert.Equal(t, ":8181", cfg.HTTPAddr)
		})
	}
}

func TestRunServe_UnsupportedTransport(t *testing.T) {
	err := runServe(AppConfig{}, ServeConfig{Transport: "streamable-http"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport type")
}

func TestNewApp(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dayboard.db")

	a, err := newApp(AppConfig{DBPath: dbPath}, nil, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, a.aggregator)
	require.NoError(t, a.Close())

	_, err = newApp(AppConfig{DBPath: dbPath, LabelCache: "redis"}, nil, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported label cache")

	_, err = newApp(AppConfig{DBPath: dbPath, LabelCache: labelCacheValkey}, nil, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valkey address is required")
}

func TestWriteAggregation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAggregation(&buf, &calendar.Aggregation{}, outputJSON))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))

	buf.Reset()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, writeAggregation(&buf, &calendar.Aggregation{
		Sources: 1,
		Events:  []calendar.Event{{ID: "e1", Title: "Standup", Start: start, End: start.Add(time.Hour), CalendarName: "Primary"}},
	}, outputText))
	assert.Contains(t, buf.String(), "Found 1 events from 1 calendar(s)")
	assert.Contains(t, buf.String(), "1. Standup")
}

func TestAccountsCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dayboard.db")
	t.Setenv("DAYBOARD_DB", "")
	t.Setenv("DAYBOARD_USER", "")

	primaryToken := writeFile(t, "primary.token", `{"access_token":"at-1","refresh_token":"rt-1","expiry":"2026-03-01T12:00:00Z"}`)
	secondaryToken := writeFile(t, "secondary.token", "at-2 rt-2")

	out, err := execute(t, newAccountsCmd(), "set-user", "--db", dbPath, "--user", "user-1",
		"--email", "jane@example.com", "--provider-account-id", "g-1", "--token-file", primaryToken)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved user user-1")

	out, err = execute(t, newAccountsCmd(), "add", "--db", dbPath, "--user", "user-1",
		"--id", "acc-2", "--provider-account-id", "g-2", "--token-file", secondaryToken)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected account acc-2 to user user-1")

	out, err = execute(t, newAccountsCmd(), "add", "--db", dbPath, "--user", "user-1",
		"--provider-account-id", "g-3", "--token-file", secondaryToken)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected account ")

	_, err = execute(t, newAccountsCmd(), "add-calendar", "--db", dbPath, "--user", "user-1",
		"--calendar-id", "work", "--name", "Work", "--color", "#3b82f6")
	require.NoError(t, err)

	// Changing the email without a token file keeps the stored token.
	_, err = execute(t, newAccountsCmd(), "set-user", "--db", dbPath, "--user", "user-1",
		"--email", "jane.doe@example.com")
	require.NoError(t, err)

	out, err = execute(t, newAccountsCmd(), "list", "--db", dbPath, "--user", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "User: user-1 (jane.doe@example.com)")
	assert.Contains(t, out, "Calendar connected: true")
	assert.Contains(t, out, "ok, expires 2026-03-01 12:00")
	assert.Contains(t, out, "acc-2")
	assert.Contains(t, out, "Work")

	_, err = execute(t, newAccountsCmd(), "remove", "acc-2", "--db", dbPath, "--user", "user-1")
	require.NoError(t, err)

	_, err = execute(t, newAccountsCmd(), "remove", "user-1", "--db", dbPath, "--user", "user-1")
	require.Error(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	src, err := st.LoadSources(t.Context(), "user-1")
	require.NoError(t, err)
	require.Len(t, src.Accounts, 1)
	assert.NotEqual(t, "acc-2", src.Accounts[0].ID)
	assert.Equal(t, "g-3", src.Accounts[0].ProviderAccountID)
	require.Len(t, src.Calendars, 1)
	assert.Equal(t, "work", src.Calendars[0].CalendarID)
	assert.True(t, src.Calendars[0].Enabled)
}

func TestAccountsCommands_Validation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dayboard.db")
	t.Setenv("DAYBOARD_USER", "")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no user", args: []string{"list", "--db", dbPath}, wantErr: "--user is required"},
		{name: "add without provider id", args: []string{"add", "--db", dbPath, "-u", "user-1"}, wantErr: "--provider-account-id is required"},
		{name: "add without token", args: []string{"add", "--db", dbPath, "-u", "user-1", "--provider-account-id", "g-2"}, wantErr: "--token-file is required"},
		{name: "calendar without id", args: []string{"add-calendar", "--db", dbPath, "-u", "user-1"}, wantErr: "--calendar-id is required"},
		{name: "unknown user", args: []string{"list", "--db", dbPath, "-u", "nobody"}, wantErr: "user record not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, newAccountsCmd(), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSessionCmd(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSessionSecret)
	t.Setenv("DAYBOARD_USER", "")

	out, err := execute(t, newSessionCmd(), "--user", "user-1")
	require.NoError(t, err)

	sessions, err := server.NewSessions(testSessionSecret, 0)
	require.NoError(t, err)
	userID, err := sessions.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = execute(t, newSessionCmd(), "--user", "user-1", "--session-secret", "short")
	assert.Error(t, err)

	_, err = execute(t, newSessionCmd())
	assert.Error(t, err)
}

func TestGenerateDocs(t *testing.T) {
	output := filepath.Join(t.TempDir(), "tools.md")
	require.NoError(t, runGenerateDocs(output))

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	doc := string(content)

	assert.Contains(t, doc, "# MCP Tools Reference")
	assert.Contains(t, doc, "- [Calendar Tools](#calendar-tools)")
	assert.Contains(t, doc, "### calendar_aggregate_events")
	assert.Contains(t, doc, "### calendar_list_sources")
	assert.Contains(t, doc, "- `timeMin` (optional): ")
}

func TestUnavailableSources(t *testing.T) {
	_, err := unavailableSources{}.LoadSources(t.Context(), "user-1")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, calendar.ErrUserRecordMissing))
}
