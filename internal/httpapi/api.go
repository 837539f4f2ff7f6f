// Package httpapi wires the authentication service onto HTTP: the login
// endpoints, the access gate middleware and the operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"orgauth.org/internal/login"
	"orgauth.org/internal/obs"
	"orgauth.org/internal/token"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	codec     *token.Codec
	handshake *login.Handshake
	states    *StateCookie
	exempt    map[string]struct{}

	authBurst     int
	authPerMinute int
}

// Options collects the collaborators the API needs.
type Options struct {
	ReadyProbe ReadyProbe
	Version    string

	Codec     *token.Codec
	Handshake *login.Handshake
	States    *StateCookie

	// ExemptPaths bypass the access gate entirely (exact match).
	ExemptPaths []string

	// Per-IP token bucket for /auth/ routes.
	AuthRateBurst     int
	AuthRatePerMinute int
}

// New constructs the API and registers routes.
func New(opts Options) *API {
	exempt := make(map[string]struct{}, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt[p] = struct{}{}
	}
	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    opts.ReadyProbe,
		version:       opts.Version,
		codec:         opts.Codec,
		handshake:     opts.Handshake,
		states:        opts.States,
		exempt:        exempt,
		authBurst:     opts.AuthRateBurst,
		authPerMinute: opts.AuthRatePerMinute,
	}

	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/callback", a.handleCallback)

	a.mux.HandleFunc("/secure/whoami", a.handleWhoAmI)
	a.mux.Handle("/secure/admin", RequireRole("owner")(http.HandlerFunc(a.handleAdmin)))

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the composed middleware chain. Ordering matters: the
// access gate runs innermost so exempt-path checks and authentication see
// the final request, and the rate limiter covers the auth routes before
// any token work happens.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.authBurst, a.authPerMinute, "/auth/")
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "orgauth-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
