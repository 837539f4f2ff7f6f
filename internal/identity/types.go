package identity

import (
	"context"
	"strings"
	"time"
)

// Tenant is an isolated organization account. Its identity never changes
// after creation.
type Tenant struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a local identity record bound 1:1 to an external-subject issued
// by the identity provider. The (Tenant, User) pair is immutable.
type User struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	ExternalSubject string    `json:"external_subject"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name"`
	CreatedAt       time.Time `json:"created_at"`
}

// Identity is the verified per-request identity attached by the access
// gate after token validation.
type Identity struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the identity holds the given role name.
func (id Identity) HasRole(role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range id.Roles {
		if strings.ToLower(r) == role {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWith attaches the verified identity to the context.
func ContextWith(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// FromContext extracts the verified identity from the context.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}
