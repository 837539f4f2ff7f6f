package authz

import (
	"context"
	"errors"
	"testing"

	"orgauth.org/internal/identity"
)

func TestAuthorizeDeniesMissingRole(t *testing.T) {
	id := identity.Identity{UserID: "u1", Roles: []string{"member"}}
	if err := Authorize(context.Background(), id, "admin"); !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("expected ErrInsufficientRole, got %v", err)
	}
}

func TestAuthorizeAllowsIntersection(t *testing.T) {
	id := identity.Identity{UserID: "u1", Roles: []string{"admin", "member"}}
	if err := Authorize(context.Background(), id, "admin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Authorize(context.Background(), id, "auditor", "member"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthorizeEmptyRequiredAllowsAnyAuthenticated(t *testing.T) {
	id := identity.Identity{UserID: "u1"}
	if err := Authorize(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthorizeIsCaseInsensitive(t *testing.T) {
	id := identity.Identity{UserID: "u1", Roles: []string{"Owner"}}
	if err := Authorize(context.Background(), id, "owner"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
