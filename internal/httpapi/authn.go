package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"orgauth.org/internal/audit"
	"orgauth.org/internal/authz"
	"orgauth.org/internal/identity"
	"orgauth.org/internal/obs"
	"orgauth.org/internal/token"
)

const (
	authHeader   = "Authorization"
	bearerScheme = "Bearer "
)

// withAuth is the access gate: exempt paths bypass it entirely — the
// exemption check runs before any header inspection or decoding, so a
// garbage Authorization header on an exempt path never produces an
// error. Every failure collapses to the same 401 body; the distinct
// reason is only logged and counted.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.exempt[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			a.rejectUnauthorized(w, r, "missing_header")
			return
		}

		claims, err := a.codec.Verify(raw)
		if err != nil {
			a.rejectUnauthorized(w, r, verifyReason(err))
			return
		}

		id := identity.Identity{
			UserID:   claims.Subject,
			TenantID: claims.TenantID,
			Email:    claims.Email,
			Roles:    claims.Roles,
		}
		next.ServeHTTP(w, r.WithContext(identity.ContextWith(r.Context(), id)))
	})
}

func (a *API) rejectUnauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	obs.CountAuthFailure(reason)
	_ = audit.LogEvent(r.Context(), "auth.request.rejected", map[string]any{
		"reason": reason,
		"path":   r.URL.Path,
	})
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, r, http.StatusUnauthorized, "unauthorized")
}

func verifyReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}

// extractBearerToken requires the exact "Bearer " scheme prefix.
func extractBearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerScheme) {
		return "", errors.New("missing or malformed authorization header")
	}
	tok := strings.TrimSpace(header[len(bearerScheme):])
	if tok == "" {
		return "", errors.New("missing bearer token")
	}
	return tok, nil
}

// RequireRole gates a route on role membership. Authentication failures
// stay 401; holding an insufficient role set is 403 — the two are never
// conflated.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identity.FromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if err := authz.Authorize(r.Context(), id, roles...); err != nil {
				obs.CountAuthFailure("forbidden")
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
