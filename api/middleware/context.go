package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

type identityKey struct{}

// Identity is the authenticated caller that Auth attaches to the request.
type Identity struct {
	UserID uuid.UUID
	Role   enums.UserRole
	Email  string
}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller set by Auth. ok is false on
// unauthenticated routes.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != uuid.Nil
}

// callerKey is the caller id as a string, or "" when unauthenticated.
func callerKey(ctx context.Context) string {
	if id, ok := IdentityFrom(ctx); ok {
		return id.UserID.String()
	}
	return ""
}
