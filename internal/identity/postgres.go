package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"orgauth.org/internal/ids"
)

const uniqueViolationCode = "23505"

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db           *sql.DB
	initialRoles []string
}

// PGOption configures PGStore behavior.
type PGOption func(*PGStore)

// WithInitialRoles overrides the role set granted to the first user of a
// new tenant. The policy "first user in a new tenant = owner" is the
// default; deployments with a different tenant-resolution rule swap it
// here.
func WithInitialRoles(roles []string) PGOption {
	return func(s *PGStore) {
		if len(roles) > 0 {
			s.initialRoles = roles
		}
	}
}

// NewPGStore constructs a PostgreSQL-backed identity store.
func NewPGStore(db *sql.DB, opts ...PGOption) *PGStore {
	s := &PGStore{
		db:           db,
		initialRoles: []string{RoleOwner},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PGStore) FindUserByExternalSubject(ctx context.Context, subject string) (*User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx,
		`select id, tenant_id, external_subject, email, display_name, created_at
		 from users where external_subject=$1`, subject)
	var u User
	if err := row.Scan(&u.ID, &u.TenantID, &u.ExternalSubject, &u.Email, &u.DisplayName, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find user", err)
	}
	return &u, nil
}

func (s *PGStore) CreateTenantAndOwner(ctx context.Context, subject, email, displayName string) (*Tenant, *User, []string, error) {
	subject = strings.TrimSpace(subject)
	email = strings.TrimSpace(strings.ToLower(email))
	if subject == "" || email == "" {
		return nil, nil, nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, nil, storeErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	tenant := &Tenant{ID: ids.New()}
	if err := tx.QueryRowContext(ctx,
		`insert into tenants(id) values($1) returning created_at`,
		tenant.ID,
	).Scan(&tenant.CreatedAt); err != nil {
		return nil, nil, nil, storeErr("create tenant", err)
	}

	user := &User{
		ID:              ids.New(),
		TenantID:        tenant.ID,
		ExternalSubject: subject,
		Email:           email,
		DisplayName:     displayName,
	}
	if err := tx.QueryRowContext(ctx,
		`insert into users(id, tenant_id, external_subject, email, display_name)
		 values($1,$2,$3,$4,$5) returning created_at`,
		user.ID, user.TenantID, user.ExternalSubject, user.Email, user.DisplayName,
	).Scan(&user.CreatedAt); err != nil {
		return nil, nil, nil, storeErr("create user", err)
	}

	for _, role := range s.initialRoles {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, tenant_id, role) values($1,$2,$3)`,
			user.ID, tenant.ID, role,
		); err != nil {
			return nil, nil, nil, storeErr("assign role", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, nil, storeErr("commit", err)
	}

	roles := make([]string, len(s.initialRoles))
	copy(roles, s.initialRoles)
	return tenant, user, roles, nil
}

func (s *PGStore) GetRoles(ctx context.Context, userID, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select role from user_roles where user_id=$1 and tenant_id=$2 order by role`,
		userID, tenantID)
	if err != nil {
		return nil, storeErr("get roles", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, storeErr("get roles", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get roles", err)
	}
	return roles, nil
}

// storeErr maps driver failures onto the package taxonomy. Unique
// violations become ErrAlreadyExists so the resolver can fall back to a
// lookup; everything else is a store-availability failure.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrStoreUnavailable)
}
