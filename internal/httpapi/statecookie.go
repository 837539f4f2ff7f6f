package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const stateCookieName = "orgauth_state"

// StateCookie is the transient anti-forgery state store: an HMAC-signed,
// TTL-bounded cookie holding the state and nonce of one login attempt.
// The cookie is single-use — the callback handler clears it whether or
// not the attempt succeeds.
type StateCookie struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// StateCookieOption configures StateCookie behavior.
type StateCookieOption func(*StateCookie)

// WithStateClock overrides the time source (useful for tests).
func WithStateClock(fn func() time.Time) StateCookieOption {
	return func(s *StateCookie) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSecureCookie toggles the Secure cookie attribute (off for local
// development over plain HTTP).
func WithSecureCookie(secure bool) StateCookieOption {
	return func(s *StateCookie) {
		s.secure = secure
	}
}

// NewStateCookie constructs the cookie codec.
func NewStateCookie(secret []byte, ttl time.Duration, opts ...StateCookieOption) (*StateCookie, error) {
	if len(secret) < 32 {
		return nil, errors.New("httpapi: state cookie secret must hold at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("httpapi: state cookie ttl must be greater than zero")
	}
	s := &StateCookie{
		secret: secret,
		ttl:    ttl,
		secure: true,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put stores the state and nonce for the current login attempt.
func (s *StateCookie) Put(w http.ResponseWriter, state, nonce string) {
	exp := s.now().Add(s.ttl).Unix()
	payload := encodeSegment(state) + "." + encodeSegment(nonce) + "." + strconv.FormatInt(exp, 10)
	sig := s.sign(payload)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    payload + "." + sig,
		Path:     "/auth",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Get returns the stored state and nonce, or ok=false when the cookie is
// absent, tampered with or expired.
func (s *StateCookie) Get(r *http.Request) (state, nonce string, ok bool) {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(cookie.Value, ".")
	if len(parts) != 4 {
		return "", "", false
	}
	payload := strings.Join(parts[:3], ".")
	expected := s.sign(payload)
	if subtle.ConstantTimeCompare([]byte(parts[3]), []byte(expected)) != 1 {
		return "", "", false
	}
	exp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || s.now().Unix() > exp {
		return "", "", false
	}
	state, err = decodeSegment(parts[0])
	if err != nil {
		return "", "", false
	}
	nonce, err = decodeSegment(parts[1])
	if err != nil {
		return "", "", false
	}
	return state, nonce, true
}

// Clear consumes the cookie.
func (s *StateCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *StateCookie) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func encodeSegment(v string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(v))
}

func decodeSegment(v string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return "", fmt.Errorf("decode segment: %w", err)
	}
	return string(raw), nil
}
