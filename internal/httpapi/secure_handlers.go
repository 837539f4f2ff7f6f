package httpapi

import (
	"net/http"

	"orgauth.org/internal/identity"
)

type whoAmIResponse struct {
	User identity.Identity `json:"user"`
}

// handleWhoAmI echoes the verified identity from the request context.
func (a *API) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := identity.FromContext(r.Context())
	if !ok {
		// Unreachable behind the access gate; kept as a guard against
		// route wiring mistakes.
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, whoAmIResponse{User: id})
}

// handleAdmin is the owner-gated sample endpoint; RequireRole("owner")
// wraps it at route registration.
func (a *API) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, _ := identity.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"tenant_id": id.TenantID,
	})
}
