// Package cont carries request-scoped identity through the context.
package cont

import "context"

type contextKey string

const userKey contextKey = "api-user"

// PutUser stores the authenticated caller name in the context.
func PutUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey, username)
}

// User returns the authenticated caller name, empty when anonymous.
func User(ctx context.Context) string {
	if v, ok := ctx.Value(userKey).(string); ok {
		return v
	}
	return ""
}
