package calendar_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/dayboard/internal/calendar"
	"github.com/teemow/dayboard/internal/tools/common"
)

func registerSourcesTool(s *mcpserver.MCPServer, deps Deps) {
	tool := mcp.NewTool(ToolListSources,
		mcp.WithDescription("List the calendars that would be queried for the user, and the connected accounts that are skipped"),
		mcp.WithString("user_id",
			mcp.Description("User whose sources to list (default: the configured user)"),
		),
	)

	s.AddTool(tool, common.InstrumentedToolHandler(ToolListSources, deps.Metrics, deps.Logger,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListSources(ctx, request, deps)
		}))
}

func handleListSources(ctx context.Context, request mcp.CallToolRequest, deps Deps) (*mcp.CallToolResult, error) {
	userID := common.GetUserIDFromArgs(ctx, request.GetArguments(), deps.DefaultUserID)
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	src, err := deps.Sources.LoadSources(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load sources: %v", err)), nil
	}

	res, err := calendar.Resolve(src, deps.Defaults)
	if err != nil && !errors.Is(err, calendar.ErrNoUsableToken) {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve sources: %v", err)), nil
	}

	contexts := res.Contexts()
	queried := make(map[string]bool, len(contexts))

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d source(s):\n\n", len(contexts))
	for i, cc := range contexts {
		queried[cc.Account.ID] = true
		name := cc.Name
		if name == "" {
			name = cc.CalendarID
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		fmt.Fprintf(&b, "   Calendar ID: %s\n", cc.CalendarID)
		fmt.Fprintf(&b, "   Account: %s (%s)\n", cc.Account.ID, cc.Account.Role)
		if cc.Account.Email != "" {
			fmt.Fprintf(&b, "   Email: %s\n", cc.Account.Email)
		}
		b.WriteString("\n")
	}

	var skipped []string
	primaryID := src.User.Account.ID
	if primaryID == "" {
		primaryID = src.User.ID
	}
	if !queried[primaryID] {
		skipped = append(skipped, fmt.Sprintf("- %s (primary): no usable token", primaryID))
	}
	for _, acc := range src.Accounts {
		if queried[acc.ID] {
			continue
		}
		reason := "no usable token"
		if acc.ProviderAccountID == "" {
			reason = "no provider account id"
		}
		skipped = append(skipped, fmt.Sprintf("- %s (secondary): %s", acc.ID, reason))
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&b, "Skipped %d account(s):\n%s\n", len(skipped), strings.Join(skipped, "\n"))
	}

	return mcp.NewToolResultText(b.String()), nil
}
