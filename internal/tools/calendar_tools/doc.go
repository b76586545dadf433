// Package calendar_tools provides MCP (Model Context Protocol) tools for the
// aggregated calendar view.
//
// calendar_aggregate_events returns a user's events across every connected
// Google account, with the same partial-failure semantics as GET /calendar.
// calendar_list_sources shows which calendars would be queried and which
// accounts are skipped.
package calendar_tools
