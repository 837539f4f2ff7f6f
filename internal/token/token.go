// Package token issues and verifies the signed claim set representing an
// authenticated session. Tokens are compact HS256 JWTs and are never
// persisted server-side.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretLen = 32

var (
	// ErrMalformed indicates the token is structurally invalid.
	ErrMalformed = errors.New("token: malformed")
	// ErrInvalidSignature indicates tampering or a wrong signing key.
	ErrInvalidSignature = errors.New("token: invalid signature")
	// ErrExpired indicates the token is past its TTL.
	ErrExpired = errors.New("token: expired")
	// ErrInvalidClaims indicates Issue was called with an unusable claim set.
	ErrInvalidClaims = errors.New("token: invalid claims")
)

// Claims is the claim set embedded in an issued token.
type Claims struct {
	TenantID string   `json:"tenant_id"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewClaims builds a claim set for the given user identity.
func NewClaims(subject, tenantID, email string, roles []string) Claims {
	return Claims{
		TenantID: tenantID,
		Email:    email,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subject,
		},
	}
}

// Config carries the immutable signing configuration. The secret must hold
// at least 32 bytes; this is enforced at construction, not per request.
type Config struct {
	Secret []byte
	Issuer string
}

// Codec signs and verifies session tokens.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec, rejecting secrets shorter than 32 bytes.
func NewCodec(cfg Config, opts ...CodecOption) (*Codec, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, fmt.Errorf("token: signing secret must be at least %d bytes", minSecretLen)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "orgauth"
	}
	c := &Codec{
		secret: cfg.Secret,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue stamps iat/exp and signs the claim set. Subject and tenant id must
// be non-empty and ttl must be positive.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	claims.Subject = strings.TrimSpace(claims.Subject)
	claims.TenantID = strings.TrimSpace(claims.TenantID)
	if claims.Subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidClaims)
	}
	if claims.TenantID == "" {
		return "", time.Time{}, fmt.Errorf("%w: tenant id is required", ErrInvalidClaims)
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: ttl must be greater than zero", ErrInvalidClaims)
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	claims.Roles = dedupeRoles(claims.Roles)
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	claims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature (constant-time, inside the HMAC comparison)
// and expiry, and returns the decoded claim set. Failures map onto
// ErrMalformed, ErrInvalidSignature and ErrExpired.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMalformed
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.TenantID) == "" {
		return nil, ErrMalformed
	}
	claims.Roles = dedupeRoles(claims.Roles)
	return claims, nil
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
