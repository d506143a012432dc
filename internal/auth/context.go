// ABOUTME: Authentication context for tracking the operator through request handlers
// ABOUTME: Provides WithAdmin/AdminFromContext for propagating identity via context

package auth

import (
	"context"
)

// adminContextKey is the key type for storing the admin name in context.Context.
type adminContextKey struct{}

// WithAdmin returns a new context carrying the authenticated admin name.
func WithAdmin(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, adminContextKey{}, name)
}

// AdminFromContext returns the admin name, or "" when the request is unauthenticated.
func AdminFromContext(ctx context.Context) string {
	name, _ := ctx.Value(adminContextKey{}).(string)
	return name
}
