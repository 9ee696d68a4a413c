// Package tenant carries the caller's tenant through request contexts.
package tenant

import (
	"context"
	"errors"
)

// contextKey is a private type for context keys to prevent collisions
type contextKey string

const tenantIDKey contextKey = "tenant_id"

var (
	// ErrNoTenantInContext is returned when tenant context is missing
	ErrNoTenantInContext = errors.New("no tenant in context")
)

// WithTenantID adds the tenant ID to context.
// Called by the auth middleware once the bearer token is verified.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID extracts tenant ID from context
// Returns ErrNoTenantInContext if tenant ID is not found
func TenantID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(tenantIDKey).(string)
	if !ok || id == "" {
		return "", ErrNoTenantInContext
	}
	return id, nil
}
