package identity

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no user exists for the queried external subject.
	ErrNotFound = errors.New("identity: not found")
	// ErrAlreadyExists indicates a uniqueness constraint rejected a create.
	ErrAlreadyExists = errors.New("identity: already exists")
	// ErrStoreUnavailable indicates the persistence collaborator failed.
	ErrStoreUnavailable = errors.New("identity: store unavailable")
	// ErrInvalidInput indicates a caller passed empty required fields.
	ErrInvalidInput = errors.New("identity: invalid input")
)

// Role names assigned at user creation.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Store describes the persistence operations required by the login
// handshake. Implementations must enforce a uniqueness constraint on the
// external subject and create tenant, owner user and initial role in one
// atomic transaction.
type Store interface {
	// FindUserByExternalSubject returns the user bound to the subject, or
	// ErrNotFound.
	FindUserByExternalSubject(ctx context.Context, subject string) (*User, error)

	// CreateTenantAndOwner atomically creates a fresh tenant, its first
	// user and the initial owner role assignment. A concurrent create for
	// the same subject surfaces as ErrAlreadyExists with nothing written.
	CreateTenantAndOwner(ctx context.Context, subject, email, displayName string) (*Tenant, *User, []string, error)

	// GetRoles returns the role names held by the user within the tenant.
	GetRoles(ctx context.Context, userID, tenantID string) ([]string, error)
}
