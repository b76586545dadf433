package calendar_tools

import (
	"errors"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/dayboard/internal/calendar"
	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/server"
)

// Tool names.
const (
	ToolAggregateEvents = "calendar_aggregate_events"
	ToolListSources     = "calendar_list_sources"
)

// Deps are the collaborators of the calendar tools.
type Deps struct {
	Aggregator server.EventAggregator

	// Sources backs calendar_list_sources; the tool is not registered without it.
	Sources calendar.SourceStore

	// Defaults labels the sources listed by calendar_list_sources.
	Defaults calendar.Defaults

	// DefaultUserID is used when neither the session nor the call names a user.
	DefaultUserID string

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// RegisterCalendarTools registers all Calendar-related tools with the MCP server
func RegisterCalendarTools(s *mcpserver.MCPServer, deps Deps) error {
	if deps.Aggregator == nil {
		return errors.New("calendar tools require an aggregator")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	registerAggregateTool(s, deps)
	if deps.Sources != nil {
		registerSourcesTool(s, deps)
	}
	return nil
}
