package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"orgauth.org/internal/identity"
	"orgauth.org/internal/token"
)

type fakeProvider struct {
	assertion Assertion
	err       error
	exchanged int
}

func (p *fakeProvider) AuthorizationURL(state, nonce string) (string, error) {
	return "https://idp.example.com/authorize?state=" + state + "&nonce=" + nonce, nil
}

func (p *fakeProvider) ExchangeCodeForIdentity(_ context.Context, code, _ string) (Assertion, error) {
	p.exchanged++
	if p.err != nil {
		return Assertion{}, p.err
	}
	if code == "" {
		return Assertion{}, errors.New("missing code")
	}
	return p.assertion, nil
}

type memStore struct {
	mu      sync.Mutex
	users   map[string]*identity.User
	roles   map[string][]string
	tenants int
	calls   int
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[string]*identity.User),
		roles: make(map[string][]string),
	}
}

func (s *memStore) FindUserByExternalSubject(_ context.Context, subject string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if u, ok := s.users[subject]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, identity.ErrNotFound
}

func (s *memStore) CreateTenantAndOwner(_ context.Context, subject, email, displayName string) (*identity.Tenant, *identity.User, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.users[subject]; ok {
		return nil, nil, nil, identity.ErrAlreadyExists
	}
	s.tenants++
	tenant := &identity.Tenant{ID: fmt.Sprintf("tenant-%d", s.tenants), CreatedAt: time.Now()}
	user := &identity.User{
		ID:              fmt.Sprintf("user-%d", len(s.users)+1),
		TenantID:        tenant.ID,
		ExternalSubject: subject,
		Email:           email,
		DisplayName:     displayName,
		CreatedAt:       time.Now(),
	}
	s.users[subject] = user
	s.roles[user.ID] = []string{identity.RoleOwner}
	return tenant, user, []string{identity.RoleOwner}, nil
}

func (s *memStore) GetRoles(_ context.Context, userID, _ string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.roles[userID], nil
}

func testHandshake(t *testing.T, provider Provider, store identity.Store) (*Handshake, *token.Codec) {
	t.Helper()
	resolver, err := identity.NewResolver(store)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	codec, err := token.NewCodec(token.Config{
		Secret: []byte(strings.Repeat("k", 32)),
		Issuer: "test-issuer",
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	h, err := NewHandshake(provider, resolver, codec, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewHandshake: %v", err)
	}
	return h, codec
}

func TestBeginGeneratesDistinctState(t *testing.T) {
	h, _ := testHandshake(t, &fakeProvider{}, newMemStore())

	first, err := h.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if first.State == "" || first.Nonce == "" {
		t.Fatal("expected state and nonce")
	}
	if first.State == first.Nonce {
		t.Fatal("state and nonce must differ")
	}
	if !strings.Contains(first.RedirectURL, first.State) {
		t.Fatalf("redirect does not carry state: %s", first.RedirectURL)
	}

	second, err := h.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if first.State == second.State {
		t.Fatal("state values must be unique per attempt")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestBeginRandomnessFailureIsInternal(t *testing.T) {
	provider := &fakeProvider{}
	resolver, _ := identity.NewResolver(newMemStore())
	codec, _ := token.NewCodec(token.Config{Secret: []byte(strings.Repeat("k", 32))})
	h, err := NewHandshake(provider, resolver, codec, time.Minute, WithRandom(failingReader{}))
	if err != nil {
		t.Fatalf("NewHandshake: %v", err)
	}
	if _, err := h.Begin(); !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestCompleteStateMismatchMakesNoCalls(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{assertion: Assertion{Subject: "ext-1", Email: "a@x.com"}}
	h, _ := testHandshake(t, provider, store)

	cases := []CallbackRequest{
		{PresentedState: "X", StoredState: "Y", Code: "code"},
		{PresentedState: "X", StoredState: "", Code: "code"},
		{PresentedState: "", StoredState: "Y", Code: "code"},
	}
	for _, req := range cases {
		if _, err := h.Complete(context.Background(), req); !errors.Is(err, ErrStateMismatch) {
			t.Fatalf("expected ErrStateMismatch for %+v, got %v", req, err)
		}
	}
	if provider.exchanged != 0 {
		t.Fatalf("IdP exchange must not run on state mismatch, got %d calls", provider.exchanged)
	}
	if store.calls != 0 {
		t.Fatalf("identity store must not be touched on state mismatch, got %d calls", store.calls)
	}
}

func TestCompleteFirstAndSecondLogin(t *testing.T) {
	store := newMemStore()
	provider := &fakeProvider{assertion: Assertion{Subject: "ext-1", Email: "a@x.com", DisplayName: "Ada"}}
	h, codec := testHandshake(t, provider, store)

	first, err := h.Complete(context.Background(), CallbackRequest{
		PresentedState: "state", StoredState: "state", Code: "code",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !first.FirstLogin {
		t.Fatal("expected first login")
	}
	if len(first.Roles) != 1 || first.Roles[0] != identity.RoleOwner {
		t.Fatalf("expected owner role, got %v", first.Roles)
	}

	claims, err := codec.Verify(first.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != first.UserID || claims.TenantID != first.TenantID {
		t.Fatalf("claims do not match resolution: %+v", claims)
	}
	if claims.Email != "a@x.com" {
		t.Fatalf("unexpected email claim: %s", claims.Email)
	}

	second, err := h.Complete(context.Background(), CallbackRequest{
		PresentedState: "state2", StoredState: "state2", Code: "code",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if second.FirstLogin {
		t.Fatal("second login must not create")
	}
	if second.UserID != first.UserID || second.TenantID != first.TenantID {
		t.Fatal("second login must resolve to same user and tenant")
	}
	if store.tenants != 1 {
		t.Fatalf("expected exactly one tenant, got %d", store.tenants)
	}
}

func TestCompleteUpstreamFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("502 from idp")}
	h, _ := testHandshake(t, provider, newMemStore())

	_, err := h.Complete(context.Background(), CallbackRequest{
		PresentedState: "s", StoredState: "s", Code: "code",
	})
	if !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth, got %v", err)
	}
}

func TestCompleteIncompleteIdentity(t *testing.T) {
	for _, assertion := range []Assertion{
		{Subject: "", Email: "a@x.com"},
		{Subject: "ext-1", Email: ""},
	} {
		provider := &fakeProvider{assertion: assertion}
		h, _ := testHandshake(t, provider, newMemStore())
		_, err := h.Complete(context.Background(), CallbackRequest{
			PresentedState: "s", StoredState: "s", Code: "code",
		})
		if !errors.Is(err, ErrIncompleteIdentity) {
			t.Fatalf("expected ErrIncompleteIdentity for %+v, got %v", assertion, err)
		}
	}
}
