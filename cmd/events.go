package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teemow/dayboard/internal/calendar"
	"github.com/teemow/dayboard/internal/logging"
	"github.com/teemow/dayboard/internal/tools/calendar_tools"
)

// Output formats of the events command.
const (
	outputText = "text"
	outputJSON = "json"
)

func newEventsCmd() *cobra.Command {
	var (
		appConfig AppConfig
		user      string
		timeMin   string
		timeMax   string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print a user's aggregated events",
		Long: `Fetch every calendar of a user, across all connected Google accounts,
and print the merged events once.

Calendars that fail to load are listed after the events; they do not make
the command fail. Refreshed tokens are written back to the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadAppEnvVars(cmd, &appConfig)
			envString(cmd, "user", "DAYBOARD_USER", &user)
			if user == "" {
				return errors.New("--user is required")
			}
			if output != outputText && output != outputJSON {
				return fmt.Errorf("unsupported output format: %s (supported: %s, %s)", output, outputText, outputJSON)
			}
			return runEvents(cmd, appConfig, user, timeMin, timeMax, output)
		},
	}

	bindAppFlags(cmd, &appConfig)
	cmd.Flags().StringVarP(&user, "user", "u", "", "User id to aggregate. Can also use DAYBOARD_USER env var.")
	cmd.Flags().StringVar(&timeMin, "time-min", "", "Start of the range (RFC3339); requires --time-max")
	cmd.Flags().StringVar(&timeMax, "time-max", "", "End of the range (RFC3339); requires --time-min")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text or json")

	return cmd
}

func runEvents(cmd *cobra.Command, appConfig AppConfig, user, timeMin, timeMax, output string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	provider, err := newInstrumentation(ctx, false)
	if err != nil {
		return err
	}
	defer shutdownInstrumentation(provider)

	a, err := newApp(appConfig, provider.Metrics(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("error closing store", logging.Err(err))
		}
	}()

	window, err := calendar.ParseWindow(timeMin, timeMax, a.aggregator.DefaultWindow())
	if err != nil {
		return err
	}

	result, err := a.aggregator.Aggregate(ctx, user, window)
	if errors.Is(err, calendar.ErrNoUsableToken) {
		result = &calendar.Aggregation{}
		logging.WithUser(logger, user).Warn("no Google Calendar connected")
	} else if err != nil {
		return fmt.Errorf("failed to aggregate events: %w", err)
	}

	return writeAggregation(cmd.OutOrStdout(), result, output)
}

// writeAggregation prints result in the requested format.
func writeAggregation(w io.Writer, result *calendar.Aggregation, output string) error {
	if output == outputJSON {
		events := result.Events
		if events == nil {
			events = []calendar.Event{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	_, err := io.WriteString(w, calendar_tools.FormatAggregation(result))
	return err
}
