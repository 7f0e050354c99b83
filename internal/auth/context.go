package auth

import (
	"context"

	"storefront/internal/apperror"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Identity is the resolved caller of a request.
type Identity struct {
	CallerID string
	Role     string
}

func (i Identity) IsOperator() bool {
	return i.Role == RoleAdmin
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores the caller identity in ctx (called by middleware).
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the caller identity, if the request was authenticated.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequireOperator fails with Unauthorized for anonymous callers and
// Forbidden for authenticated callers without the operator role.
func RequireOperator(ctx context.Context) error {
	id, ok := FromContext(ctx)
	if !ok {
		return apperror.New(apperror.KindUnauthorized, "authentication required")
	}
	if !id.IsOperator() {
		return apperror.New(apperror.KindForbidden, "access denied")
	}
	return nil
}
