package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"seiran.gg/internal/auth"
	"seiran.gg/internal/captcha"
	"seiran.gg/internal/obs"
	"seiran.gg/internal/stats"
	"seiran.gg/internal/stream"
)

// ReadyProbe is a simple readiness check (pings the database when present).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the credential subsystem. It owns transport
// concerns only: JSON marshaling, the session cookie, rate limiting.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth    *auth.Service
	tokens  *auth.TokenCodec
	stats   stats.Service
	stream  *stream.Stream
	captcha *captcha.Verifier

	rateBurst  int
	ratePerSec int
}

// Option adjusts transport behavior.
type Option func(*API)

// WithRateLimit overrides the per-client rate limit. Non-positive values
// keep the defaults.
func WithRateLimit(burst, perSec int) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSec > 0 {
			a.ratePerSec = perSec
		}
	}
}

func New(rp ReadyProbe, version string, svc *auth.Service, tokens *auth.TokenCodec, st stats.Service, str *stream.Stream, cv *captcha.Verifier, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       svc,
		tokens:     tokens,
		stats:      st,
		stream:     str,
		captcha:    cv,
		rateBurst:  20,
		ratePerSec: 10,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.HandleFunc("/v1/login", a.handleLogin)
	a.mux.HandleFunc("/v1/register", a.handleRegister)
	a.mux.HandleFunc("/v1/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/settings/profile", a.handleSettingsProfile)
	a.mux.HandleFunc("/v1/settings/password", a.handleSettingsPassword)

	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/leaderboard/", a.handleLeaderboard)
	a.mux.HandleFunc("/v1/events", a.Events)

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withSession(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 64<<10)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "seiran-web",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
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

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "seiran-web",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeReason(w http.ResponseWriter, code int, msg string, reason auth.Reason) {
	writeJSON(w, code, map[string]any{"error": msg, "reason": string(reason)})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeAuthFailure maps credential-check outcomes to responses. A missing
// account and a wrong password are deliberately indistinguishable here.
func writeAuthFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUnverified):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":  "account awaiting verification",
			"status": "pending_verification",
		})
	case errors.Is(err, auth.ErrBanned):
		writeError(w, http.StatusForbidden, "account banned")
	case errors.Is(err, auth.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
