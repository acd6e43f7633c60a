package auth

import (
	"context"
	"slices"
	"time"
)

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier of the caller (sub claim).
	Subject string

	// Roles are the roles granted to the caller.
	Roles []string

	// ExpiresAt is when the bearer token stops being accepted.
	ExpiresAt time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return id != nil && slices.Contains(id.Roles, role)
}

type contextKey int

const identityKey contextKey = iota

// WithIdentity returns a new context with the given identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the identity from the context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
