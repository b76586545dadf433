package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/dayboard/internal/server"
)

func newSessionCmd() *cobra.Command {
	var (
		user          string
		sessionSecret string
		ttl           time.Duration
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Issue a session token for the calendar API",
		Long: `Print a signed session token for a user. Send it to 'dayboard serve' as
"Authorization: Bearer <token>" or in the dayboard_session cookie.

The secret must match the one the server runs with.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			envString(cmd, "user", "DAYBOARD_USER", &user)
			envString(cmd, "session-secret", "SESSION_SECRET", &sessionSecret)
			if user == "" {
				return errors.New("--user is required")
			}

			sessions, err := server.NewSessions(sessionSecret, ttl)
			if err != nil {
				return err
			}
			token, err := sessions.Issue(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id the session is issued for. Can also use DAYBOARD_USER env var.")
	cmd.Flags().StringVar(&sessionSecret, "session-secret", "", "HMAC secret for session tokens, at least 32 bytes. Can also use SESSION_SECRET env var.")
	cmd.Flags().DurationVar(&ttl, "ttl", server.DefaultSessionTTL, "Lifetime of the session")

	return cmd
}
