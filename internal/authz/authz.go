// Package authz evaluates role-based access for verified identities.
// Authorization denials are distinct from authentication failures:
// callers map ErrInsufficientRole to forbidden, never to unauthorized.
package authz

import (
	"context"
	"errors"

	"orgauth.org/internal/audit"
	"orgauth.org/internal/identity"
)

// ErrInsufficientRole indicates the identity holds none of the required roles.
var ErrInsufficientRole = errors.New("authz: insufficient role")

// Authorize permits the operation when the identity holds at least one of
// the required roles. An empty required set means any authenticated
// identity suffices. Denials are logged with both role sets.
func Authorize(ctx context.Context, id identity.Identity, required ...string) error {
	if len(required) == 0 {
		return nil
	}
	for _, role := range required {
		if id.HasRole(role) {
			return nil
		}
	}
	_ = audit.LogEvent(ctx, "auth.forbidden", map[string]any{
		"held_roles":     id.Roles,
		"required_roles": required,
	})
	return ErrInsufficientRole
}
