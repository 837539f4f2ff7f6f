package login

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const defaultExchangeTimeout = 10 * time.Second

// OIDCConfig configures the external OpenID Connect provider. Endpoints
// are discovered from {Issuer}/.well-known/openid-configuration.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// ExchangeTimeout bounds the code exchange round-trip. Defaults to 10s.
	ExchangeTimeout time.Duration
}

// OIDCProvider implements Provider against an OIDC-compliant IdP.
type OIDCProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	timeout      time.Duration
}

var _ Provider = (*OIDCProvider)(nil)

// NewOIDCProvider performs discovery and builds the provider. The openid
// scope is mandatory: without it the IdP returns no ID token and the
// handshake cannot resolve an identity.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("login: oidc issuer is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("login: oidc client credentials are required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("login: oidc redirect url is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("login: discover oidc endpoints: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		return nil, errors.New("login: openid scope is required")
	}

	timeout := cfg.ExchangeTimeout
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}

	return &OIDCProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     provider.Endpoint(),
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		timeout:  timeout,
	}, nil
}

// AuthorizationURL builds the IdP redirect carrying the state and nonce.
func (p *OIDCProvider) AuthorizationURL(state, nonce string) (string, error) {
	if state == "" {
		return "", errors.New("login: state is required")
	}
	return p.oauth2Config.AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// ExchangeCodeForIdentity swaps the authorization code for tokens,
// verifies the ID token and its nonce, and extracts the identity
// assertion. The round-trip is capped by the configured timeout.
func (p *OIDCProvider) ExchangeCodeForIdentity(ctx context.Context, code, nonce string) (Assertion, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tokens, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Assertion{}, fmt.Errorf("exchange code: %w", err)
	}

	rawIDToken, ok := tokens.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Assertion{}, errors.New("token response missing id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Assertion{}, fmt.Errorf("verify id token: %w", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return Assertion{}, errors.New("id token nonce mismatch")
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Assertion{}, fmt.Errorf("decode id token claims: %w", err)
	}

	return Assertion{
		Subject:     idToken.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}
