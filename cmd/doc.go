// Package cmd implements the command-line interface for dayboard.
//
// This package provides the following commands:
//   - serve: Serve GET /calendar over HTTP, or the calendar MCP tools over stdio
//   - events: Print a user's aggregated events once
//   - accounts: Import users, connected accounts and calendar subscriptions
//   - session: Issue a session token for the HTTP API
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
