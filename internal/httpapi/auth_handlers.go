package httpapi

import (
	"errors"
	"net/http"
	"time"

	"orgauth.org/internal/audit"
	"orgauth.org/internal/login"
	"orgauth.org/internal/obs"
)

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleLogin starts a login attempt: it generates the anti-forgery
// state, stashes it in the signed cookie and redirects to the IdP.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	attempt, err := a.handshake.Begin()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login unavailable")
		return
	}

	a.states.Put(w, attempt.State, attempt.Nonce)
	_ = audit.LogEvent(r.Context(), "auth.login.start", nil)
	http.Redirect(w, r, attempt.RedirectURL, http.StatusFound)
}

// handleCallback finishes the attempt. State mismatch and incomplete
// identity return the same 400 body so the response is not usable as a
// state-guessing oracle; only the audit log carries the distinction.
func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	storedState, nonce, _ := a.states.Get(r)
	a.states.Clear(w) // single-use regardless of outcome

	issued, err := a.handshake.Complete(r.Context(), login.CallbackRequest{
		PresentedState: r.URL.Query().Get("state"),
		StoredState:    storedState,
		Code:           r.URL.Query().Get("code"),
		Nonce:          nonce,
	})
	if err != nil {
		switch {
		case errors.Is(err, login.ErrStateMismatch):
			obs.CountLogin("state_mismatch")
			writeError(w, r, http.StatusBadRequest, "login failed")
		case errors.Is(err, login.ErrIncompleteIdentity):
			obs.CountLogin("incomplete_identity")
			writeError(w, r, http.StatusBadRequest, "login failed")
		case errors.Is(err, login.ErrUpstreamAuth):
			obs.CountLogin("upstream_error")
			writeError(w, r, http.StatusBadGateway, "identity provider unavailable")
		default:
			obs.CountLogin("internal")
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	obs.CountLogin("success")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: issued.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   issued.ExpiresAt,
	})
}
