package httpapi

import (
	"net/http"
	"strings"
	"time"

	"seiran.gg/internal/audit"
	"seiran.gg/internal/auth"
	"seiran.gg/internal/ids"
)

const (
	sessionCookie = "seiran_session"
	authHeader    = "Authorization"
	bearer        = "Bearer "
)

// withSession resolves the session token (cookie first, then bearer header)
// and attaches the Session plus a request id to the context. Requests
// without a valid token proceed anonymously; handlers that need an
// authenticated session check for themselves. Tokens minted before the
// account's last password change are treated as anonymous, so a retained
// token does not outlive the credential it was issued under.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestID(r.Context(), ids.New())

		if token := a.sessionToken(r); token != "" && a.tokens != nil {
			if session, err := a.tokens.Parse(token); err == nil {
				if stale, err := a.auth.SessionStale(ctx, session); err == nil && !stale {
					ctx = auth.ContextWithSession(ctx, session)
				}
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

// setSessionCookie installs the minted token on the response.
func (a *API) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie retracts the session. Used by logout and by every
// credential-changing operation that invalidates trust.
func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
