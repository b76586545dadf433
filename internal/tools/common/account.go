package common

import (
	"context"

	"github.com/teemow/dayboard/internal/server"
)

// GetUserIDFromArgs resolves the user a tool call acts for.
//
// Priority order:
//  1. Authenticated user from the request context
//  2. Explicit "user_id" argument
//  3. fallback (the serve command's --user)
func GetUserIDFromArgs(ctx context.Context, args map[string]interface{}, fallback string) string {
	if userID, ok := server.UserIDFromContext(ctx); ok {
		return userID
	}
	if v, ok := args["user_id"].(string); ok && v != "" {
		return v
	}
	return fallback
}

// GetStringArg returns args[key] when it is a string.
func GetStringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}
