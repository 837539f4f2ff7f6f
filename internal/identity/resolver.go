package identity

import (
	"context"
	"errors"
	"strings"
)

// Resolution is the outcome of a find-or-create for an external subject.
type Resolution struct {
	Tenant  *Tenant
	User    *User
	Roles   []string
	Created bool
}

// Resolver maps an external identity assertion onto a local tenant and
// user, creating both on first login.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver.
func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("identity: store is required")
	}
	return &Resolver{store: store}, nil
}

// Resolve looks up the user for the external subject, creating a fresh
// tenant with the subject as its owner on first login. Two concurrent
// first logins for the same subject are serialized by the store's
// uniqueness constraint: the loser of the race observes ErrAlreadyExists
// and falls back to the lookup path, so both flows resolve to the same
// user.
func (r *Resolver) Resolve(ctx context.Context, subject, email, displayName string) (Resolution, error) {
	subject = strings.TrimSpace(subject)
	email = strings.TrimSpace(strings.ToLower(email))
	if subject == "" || email == "" {
		return Resolution{}, ErrInvalidInput
	}

	user, err := r.store.FindUserByExternalSubject(ctx, subject)
	switch {
	case err == nil:
		roles, err := r.store.GetRoles(ctx, user.ID, user.TenantID)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{User: user, Roles: roles}, nil
	case errors.Is(err, ErrNotFound):
		// fall through to create
	default:
		return Resolution{}, err
	}

	tenant, user, roles, err := r.store.CreateTenantAndOwner(ctx, subject, email, displayName)
	if err == nil {
		return Resolution{Tenant: tenant, User: user, Roles: roles, Created: true}, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return Resolution{}, err
	}

	// Lost the first-login race: someone else just created this user.
	user, err = r.store.FindUserByExternalSubject(ctx, subject)
	if err != nil {
		return Resolution{}, err
	}
	roles, err = r.store.GetRoles(ctx, user.ID, user.TenantID)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{User: user, Roles: roles}, nil
}
