// Package login implements the OAuth login handshake: anti-forgery state
// generation, callback validation, first-login identity resolution and
// session token issuance.
package login

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"orgauth.org/internal/audit"
	"orgauth.org/internal/identity"
	"orgauth.org/internal/token"
)

var (
	// ErrStateMismatch indicates the callback presented a state value that
	// does not match the stored one (including absent stored state).
	ErrStateMismatch = errors.New("login: state mismatch")
	// ErrIncompleteIdentity indicates the IdP assertion lacks required fields.
	ErrIncompleteIdentity = errors.New("login: incomplete identity")
	// ErrUpstreamAuth indicates the IdP exchange failed.
	ErrUpstreamAuth = errors.New("login: upstream auth error")
	// ErrInternal indicates a randomness or configuration failure.
	ErrInternal = errors.New("login: internal error")
)

// Assertion is the identity resolved from the external provider.
type Assertion struct {
	Subject     string
	Email       string
	DisplayName string
}

// Provider is the external identity provider collaborator.
type Provider interface {
	// AuthorizationURL builds the IdP redirect target parameterized with
	// the anti-forgery state and nonce.
	AuthorizationURL(state, nonce string) (string, error)
	// ExchangeCodeForIdentity swaps the authorization code for a verified
	// identity assertion, validating the nonce where the protocol carries
	// one. Implementations wrap their own bounded timeout.
	ExchangeCodeForIdentity(ctx context.Context, code, nonce string) (Assertion, error)
}

// Attempt is a started login: the redirect target plus the anti-forgery
// values the caller must stash in the transient state store.
type Attempt struct {
	RedirectURL string
	State       string
	Nonce       string
}

// CallbackRequest carries the values needed to finish a login attempt.
type CallbackRequest struct {
	PresentedState string
	StoredState    string
	Code           string
	Nonce          string
}

// IssuedToken is the outcome of a successful callback.
type IssuedToken struct {
	AccessToken string
	ExpiresAt   time.Time
	UserID      string
	TenantID    string
	Email       string
	Roles       []string
	FirstLogin  bool
}

// Handshake drives the login flow end to end.
type Handshake struct {
	provider Provider
	resolver *identity.Resolver
	codec    *token.Codec
	ttl      time.Duration
	random   io.Reader
}

// Option configures Handshake behavior.
type Option func(*Handshake)

// WithRandom overrides the entropy source (useful for tests).
func WithRandom(r io.Reader) Option {
	return func(h *Handshake) {
		if r != nil {
			h.random = r
		}
	}
}

// NewHandshake constructs a Handshake.
func NewHandshake(provider Provider, resolver *identity.Resolver, codec *token.Codec, ttl time.Duration, opts ...Option) (*Handshake, error) {
	if provider == nil {
		return nil, errors.New("login: provider is required")
	}
	if resolver == nil {
		return nil, errors.New("login: resolver is required")
	}
	if codec == nil {
		return nil, errors.New("login: token codec is required")
	}
	if ttl <= 0 {
		return nil, errors.New("login: token ttl must be greater than zero")
	}
	h := &Handshake{
		provider: provider,
		resolver: resolver,
		codec:    codec,
		ttl:      ttl,
		random:   rand.Reader,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Begin generates the anti-forgery state and nonce and builds the IdP
// redirect URL. Inability to read secure randomness is fatal.
func (h *Handshake) Begin() (Attempt, error) {
	state, err := h.randomValue()
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: generate state: %v", ErrInternal, err)
	}
	nonce, err := h.randomValue()
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: generate nonce: %v", ErrInternal, err)
	}
	redirect, err := h.provider.AuthorizationURL(state, nonce)
	if err != nil {
		return Attempt{}, fmt.Errorf("%w: build authorization url: %v", ErrInternal, err)
	}
	return Attempt{RedirectURL: redirect, State: state, Nonce: nonce}, nil
}

// Complete validates the callback and exchanges it for a session token.
// The state comparison runs before anything else: a mismatch (or absent
// stored state) fails without touching the identity store or the IdP.
func (h *Handshake) Complete(ctx context.Context, req CallbackRequest) (IssuedToken, error) {
	if !statesEqual(req.PresentedState, req.StoredState) {
		_ = audit.LogEvent(ctx, "auth.login.state_mismatch", map[string]any{
			"stored_state_present": req.StoredState != "",
		})
		return IssuedToken{}, ErrStateMismatch
	}

	assertion, err := h.provider.ExchangeCodeForIdentity(ctx, req.Code, req.Nonce)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	if strings.TrimSpace(assertion.Subject) == "" || strings.TrimSpace(assertion.Email) == "" {
		return IssuedToken{}, ErrIncompleteIdentity
	}

	res, err := h.resolver.Resolve(ctx, assertion.Subject, assertion.Email, assertion.DisplayName)
	if err != nil {
		return IssuedToken{}, err
	}

	claims := token.NewClaims(res.User.ID, res.User.TenantID, res.User.Email, res.Roles)
	signed, exp, err := h.codec.Issue(claims, h.ttl)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("%w: issue token: %v", ErrInternal, err)
	}

	_ = audit.LogEvent(ctx, "auth.login.success", map[string]any{
		"user_id":     res.User.ID,
		"tenant_id":   res.User.TenantID,
		"email":       res.User.Email,
		"first_login": res.Created,
	})

	return IssuedToken{
		AccessToken: signed,
		ExpiresAt:   exp,
		UserID:      res.User.ID,
		TenantID:    res.User.TenantID,
		Email:       res.User.Email,
		Roles:       res.Roles,
		FirstLogin:  res.Created,
	}, nil
}

func (h *Handshake) randomValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(h.random, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// statesEqual compares state values in constant time. An empty stored
// state (stale or replayed callback) never matches.
func statesEqual(presented, stored string) bool {
	if stored == "" || presented == "" {
		return false
	}
	if len(presented) != len(stored) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
