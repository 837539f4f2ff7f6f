// Package config loads the immutable service configuration from the
// environment. Components receive the values they need at construction;
// nothing reads the environment after startup.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const minSecretLen = 32

// Config is parsed once at startup and passed down by value.
type Config struct {
	Addr        string `env:"ORGAUTH_ADDR" envDefault:":8080"`
	DatabaseDSN string `env:"ORGAUTH_PG_DSN"`

	TokenSecret string        `env:"ORGAUTH_TOKEN_SECRET"`
	TokenIssuer string        `env:"ORGAUTH_TOKEN_ISSUER" envDefault:"orgauth"`
	TokenTTL    time.Duration `env:"ORGAUTH_TOKEN_TTL" envDefault:"15m"`

	OIDCIssuer       string   `env:"ORGAUTH_OIDC_ISSUER"`
	OIDCClientID     string   `env:"ORGAUTH_OIDC_CLIENT_ID"`
	OIDCClientSecret string   `env:"ORGAUTH_OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string   `env:"ORGAUTH_OIDC_REDIRECT_URL"`
	OIDCScopes       []string `env:"ORGAUTH_OIDC_SCOPES" envSeparator:"," envDefault:"openid,profile,email"`

	// StateTTL bounds how long a login attempt may sit between redirect
	// and callback.
	StateTTL time.Duration `env:"ORGAUTH_STATE_TTL" envDefault:"10m"`

	// ExemptPaths are matched exactly and bypass the access gate.
	ExemptPaths []string `env:"ORGAUTH_EXEMPT_PATHS" envSeparator:"," envDefault:"/auth/login,/auth/callback,/healthz,/readyz,/metrics"`

	// Per-IP token bucket applied to /auth/* routes.
	AuthRateBurst     int `env:"ORGAUTH_AUTH_RATE_BURST" envDefault:"10"`
	AuthRatePerMinute int `env:"ORGAUTH_AUTH_RATE_PER_MINUTE" envDefault:"10"`
}

// Load parses and validates configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unusable configuration at startup rather than at
// request time.
func (c Config) Validate() error {
	if len(c.TokenSecret) < minSecretLen {
		return fmt.Errorf("config: ORGAUTH_TOKEN_SECRET must hold at least %d bytes", minSecretLen)
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: ORGAUTH_TOKEN_TTL must be greater than zero")
	}
	if c.StateTTL <= 0 {
		return errors.New("config: ORGAUTH_STATE_TTL must be greater than zero")
	}
	if c.OIDCIssuer == "" {
		return errors.New("config: ORGAUTH_OIDC_ISSUER is required")
	}
	if c.OIDCClientID == "" || c.OIDCClientSecret == "" {
		return errors.New("config: OIDC client credentials are required")
	}
	if c.OIDCRedirectURL == "" {
		return errors.New("config: ORGAUTH_OIDC_REDIRECT_URL is required")
	}
	return nil
}
