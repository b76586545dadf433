package calendar_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/dayboard/internal/calendar"
	"github.com/teemow/dayboard/internal/tools/common"
)

func registerAggregateTool(s *mcpserver.MCPServer, deps Deps) {
	tool := mcp.NewTool(ToolAggregateEvents,
		mcp.WithDescription("List the user's events across all connected Google accounts, merged and sorted by start time. "+
			"Calendars that fail to load are reported but do not fail the call."),
		mcp.WithString("user_id",
			mcp.Description("User whose calendars to aggregate (default: the configured user)"),
		),
		mcp.WithString("timeMin",
			mcp.Description("Start of the range (RFC3339). Must be given together with timeMax. Default: 30 days ago"),
		),
		mcp.WithString("timeMax",
			mcp.Description("End of the range (RFC3339). Must be given together with timeMin. Default: 30 days ahead"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: 'text' (default) or 'json'"),
			mcp.Enum("text", "json"),
		),
	)

	s.AddTool(tool, common.InstrumentedToolHandler(ToolAggregateEvents, deps.Metrics, deps.Logger,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAggregateEvents(ctx, request, deps)
		}))
}

func handleAggregateEvents(ctx context.Context, request mcp.CallToolRequest, deps Deps) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	userID := common.GetUserIDFromArgs(ctx, args, deps.DefaultUserID)
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	window, err := calendar.ParseWindow(
		common.GetStringArg(args, "timeMin"),
		common.GetStringArg(args, "timeMax"),
		deps.Aggregator.DefaultWindow(),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := deps.Aggregator.Aggregate(ctx, userID, window)
	if errors.Is(err, calendar.ErrNoUsableToken) {
		return mcp.NewToolResultText("No Google Calendar is connected for this user, so there are no events to show."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to aggregate events: %v", err)), nil
	}

	if common.GetStringArg(args, "format") == "json" {
		out, err := json.MarshalIndent(result.Events, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode events: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}

	return mcp.NewToolResultText(FormatAggregation(result)), nil
}

// FormatAggregation renders an aggregation as a numbered event list followed
// by the sources that failed.
func FormatAggregation(agg *calendar.Aggregation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Found %d events from %d calendar(s):\n\n", len(agg.Events), agg.Sources)
	for i, event := range agg.Events {
		fmt.Fprintf(&b, "%d. %s\n", i+1, event.Title)
		fmt.Fprintf(&b, "   ID: %s\n", event.ID)
		if event.AllDay {
			fmt.Fprintf(&b, "   Date: %s (all day)\n", event.Start.Format(time.DateOnly))
		} else {
			fmt.Fprintf(&b, "   Start: %s\n", event.Start.Format(time.RFC3339))
			fmt.Fprintf(&b, "   End: %s\n", event.End.Format(time.RFC3339))
		}
		fmt.Fprintf(&b, "   Calendar: %s\n", event.CalendarName)
		if event.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", event.Location)
		}
		b.WriteString("\n")
	}

	if len(agg.Failures) > 0 {
		fmt.Fprintf(&b, "%d calendar(s) could not be loaded:\n", len(agg.Failures))
		for _, fe := range agg.Failures {
			fmt.Fprintf(&b, "- %s (account %s): %s\n", fe.CalendarID, fe.AccountID, fe.Kind)
		}
	}

	return b.String()
}
