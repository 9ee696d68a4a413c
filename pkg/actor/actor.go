// Package actor identifies the authenticated caller performing an action.
//
// The actor is built from verified token claims. It carries identity and
// tenant only: the caller's role is resolved from the database per request,
// never trusted from the token.
package actor

import (
	"context"
	"fmt"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the user ID (token subject)
	ID string `json:"id"`

	// TenantID is the tenant the actor belongs to
	TenantID string `json:"tenant_id"`

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	if a.Email == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.Email)
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}
