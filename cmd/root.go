package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/dayboard/internal/logging"
)

var (
	debugMode bool
	logFormat string
)

// rootCmd represents the base command for the dayboard application
var rootCmd = &cobra.Command{
	Use:   "dayboard",
	Short: "Aggregates Google Calendar events across connected accounts",
	Long: `dayboard merges the events of a user's Google Calendars, including the
calendars of additional connected Google accounts, into one chronological view.

It can run as:
  - An HTTP API serving GET /calendar (serve)
  - An MCP (Model Context Protocol) server for AI assistants (serve --transport stdio)
  - A one-shot CLI (events)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(slog.New(logging.NewHandler(logFormat, debugMode)))
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dayboard version %s\n" .Version}}`)

	// A missing .env is fine; a malformed one is not silently ignored.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", logging.Err(err))
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Subcommands with their own pre-run hooks still get logging configured.
	cobra.EnableTraverseRunHooks = true

	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format: text or json")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
