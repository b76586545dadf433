// Package logging provides structured logging utilities for dayboard.
//
// Logging goes through the standard library's slog package. This package
// only centralizes attribute naming and handler construction so that every
// log line about a calendar source carries the same keys.
//
// # Usage Patterns
//
//	logger := logging.WithOperation(slog.Default(), "calendar.fetch")
//	logger.Warn("source failed",
//	    logging.Calendar(calendarID),
//	    logging.Account(accountID),
//	    logging.Err(err))
//
// # Security Considerations
//
//   - User emails are hashed with UserHash before they reach a log line
//   - Tokens are never logged; use SanitizeToken when a length is useful
package logging
