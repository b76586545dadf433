package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/dayboard/internal/calendar"
	"github.com/teemow/dayboard/internal/store"
)

// accountsOptions are the flags shared by all accounts subcommands.
type accountsOptions struct {
	dbPath string
	user   string
}

func newAccountsCmd() *cobra.Command {
	var opts accountsOptions

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage users, connected accounts and calendar subscriptions",
		Long: `Import already-issued Google tokens and calendar subscriptions into the
dayboard database, and inspect or remove them.

Token files hold either the JSON of an OAuth2 token, or an access token and a
refresh token separated by whitespace.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envString(cmd, "db", "DAYBOARD_DB", &opts.dbPath)
			envString(cmd, "user", "DAYBOARD_USER", &opts.user)
			if opts.user == "" {
				return errors.New("--user is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (default: ~/.dayboard/dayboard.db). Can also use DAYBOARD_DB env var.")
	cmd.PersistentFlags().StringVarP(&opts.user, "user", "u", "", "User id. Can also use DAYBOARD_USER env var.")

	cmd.AddCommand(newAccountsSetUserCmd(&opts))
	cmd.AddCommand(newAccountsAddCmd(&opts))
	cmd.AddCommand(newAccountsAddCalendarCmd(&opts))
	cmd.AddCommand(newAccountsListCmd(&opts))
	cmd.AddCommand(newAccountsRemoveCmd(&opts))

	return cmd
}

func newAccountsSetUserCmd(opts *accountsOptions) *cobra.Command {
	var (
		email             string
		providerAccountID string
		tokenFile         string
	)

	cmd := &cobra.Command{
		Use:   "set-user",
		Short: "Create or update a user and their primary Google account",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := calendar.User{
				ID:    opts.user,
				Email: email,
				Account: calendar.ConnectedAccount{
					ID:                opts.user,
					ProviderAccountID: providerAccountID,
					Email:             email,
					Role:              calendar.RolePrimary,
				},
			}
			if tokenFile != "" {
				tok, err := readTokenFile(tokenFile)
				if err != nil {
					return err
				}
				u.Account.Token = tok
			}

			return withStore(opts, func(st *store.Store) error {
				if err := st.SaveUser(cmd.Context(), u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved user %s\n", u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the user")
	cmd.Flags().StringVar(&providerAccountID, "provider-account-id", "", "Google account id of the primary account")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "File holding the primary account's token")

	return cmd
}

func newAccountsAddCmd(opts *accountsOptions) *cobra.Command {
	var (
		id                string
		email             string
		providerAccountID string
		tokenFile         string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Connect an additional Google account to a user",
		Long: `Connect an additional Google account to a user. Its default calendar is
included in the user's aggregated view, labelled as view-only.

Running add again with the same --id replaces the account's token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if providerAccountID == "" {
				return errors.New("--provider-account-id is required")
			}
			if tokenFile == "" {
				return errors.New("--token-file is required")
			}
			tok, err := readTokenFile(tokenFile)
			if err != nil {
				return err
			}
			if id == "" {
				id = uuid.NewString()
			}

			acc := calendar.ConnectedAccount{
				ID:                id,
				ProviderAccountID: providerAccountID,
				Email:             email,
				Token:             tok,
				Role:              calendar.RoleSecondary,
			}
			return withStore(opts, func(st *store.Store) error {
				if err := st.SaveAccount(cmd.Context(), opts.user, acc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connected account %s to user %s\n", acc.ID, opts.user)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Account id (default: a new UUID)")
	cmd.Flags().StringVar(&email, "email", "", "Email address of the account (resolved from Google when empty)")
	cmd.Flags().StringVar(&providerAccountID, "provider-account-id", "", "Google account id")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "File holding the account's token")

	return cmd
}

func newAccountsAddCalendarCmd(opts *accountsOptions) *cobra.Command {
	var (
		cal      calendar.UserCalendar
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add-calendar",
		Short: "Subscribe a user to a calendar of their primary account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cal.CalendarID == "" {
				return errors.New("--calendar-id is required")
			}
			cal.AccountID = opts.user
			cal.Enabled = !disabled

			return withStore(opts, func(st *store.Store) error {
				if err := st.SaveCalendar(cmd.Context(), opts.user, cal); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved calendar %s for user %s\n", cal.CalendarID, opts.user)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cal.CalendarID, "calendar-id", "", "Google calendar id")
	cmd.Flags().StringVar(&cal.Name, "name", "", "Display name of the calendar")
	cmd.Flags().StringVar(&cal.Color, "color", "", "Display color of the calendar (e.g. #3b82f6)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Store the subscription without querying it")

	return cmd
}

func newAccountsListCmd(opts *accountsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List a user's accounts and calendar subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st *store.Store) error {
				src, err := st.LoadSources(cmd.Context(), opts.user)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User: %s", src.User.ID)
				if src.User.Email != "" {
					fmt.Fprintf(out, " (%s)", src.User.Email)
				}
				fmt.Fprintf(out, "\nCalendar connected: %t\n\n", src.User.CalendarConnected)

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ACCOUNT\tROLE\tEMAIL\tTOKEN")
				for _, acc := range append([]calendar.ConnectedAccount{src.User.Account}, src.Accounts...) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", acc.ID, acc.Role, orDash(acc.Email), tokenStatus(acc))
				}
				if err := tw.Flush(); err != nil {
					return err
				}

				if len(src.Calendars) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CALENDAR\tNAME\tCOLOR\tENABLED")
				for _, c := range src.Calendars {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", c.CalendarID, orDash(c.Name), orDash(c.Color), c.Enabled)
				}
				return tw.Flush()
			})
		},
	}
}

func newAccountsRemoveCmd(opts *accountsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Disconnect an additional account from a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == opts.user {
				return errors.New("the primary account cannot be removed")
			}
			return withStore(opts, func(st *store.Store) error {
				if err := st.DeleteAccount(cmd.Context(), opts.user, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s from user %s\n", args[0], opts.user)
				return nil
			})
		},
	}
}

// withStore opens the database for the duration of fn.
func withStore(opts *accountsOptions, fn func(*store.Store) error) error {
	st, err := store.Open(opts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

// readTokenFile reads an OAuth2 token, either as JSON or as an access token
// and a refresh token separated by whitespace.
func readTokenFile(path string) (*oauth2.Token, error) {
	slurp, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	content := strings.TrimSpace(string(slurp))

	if strings.HasPrefix(content, "{") {
		var tok oauth2.Token
		if err := json.Unmarshal([]byte(content), &tok); err != nil {
			return nil, fmt.Errorf("invalid token file %s: %w", path, err)
		}
		if tok.AccessToken == "" && tok.RefreshToken == "" {
			return nil, fmt.Errorf("token file %s holds neither an access token nor a refresh token", path)
		}
		return &tok, nil
	}

	f := strings.Fields(content)
	if len(f) != 2 {
		return nil, fmt.Errorf("expected two fields (access token and refresh token) in %v; got %d fields", path, len(f))
	}
	return &oauth2.Token{
		AccessToken:  f[0],
		TokenType:    "Bearer",
		RefreshToken: f[1],
	}, nil
}

func tokenStatus(acc calendar.ConnectedAccount) string {
	switch {
	case acc.Token == nil:
		return "none"
	case !acc.HasUsableToken():
		return "no access token"
	case acc.Token.RefreshToken == "":
		return "access only"
	case acc.Token.Expiry.IsZero():
		return "ok"
	default:
		return "ok, expires " + acc.Token.Expiry.UTC().Format("2006-01-02 15:04")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
