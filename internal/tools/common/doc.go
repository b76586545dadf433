// Package common provides shared helpers for the MCP tool packages:
// resolving the acting user and instrumenting tool handlers.
package common
