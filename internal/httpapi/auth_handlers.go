package httpapi

import (
	"errors"
	"net/http"
	"time"

	"seiran.gg/internal/audit"
	"seiran.gg/internal/auth"
	"seiran.gg/internal/stream"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccountID int64     `json:"account_id"`
	Name      string    `json:"name"`
	Priv      int32     `json:"priv"`
	IsDonator bool      `json:"is_donator"`
	IsStaff   bool      `json:"is_staff"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		writeError(w, http.StatusConflict, "already logged in")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	session, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}

	token, expiresAt, err := a.tokens.Mint(session)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session issue failed")
		return
	}
	a.setSessionCookie(w, token, expiresAt)

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"account_id": session.AccountID,
	})
	if a.stream != nil {
		a.stream.Publish(stream.AccountEvent{
			Type:      stream.EventLoggedIn,
			AccountID: session.AccountID,
			Name:      session.Name,
		})
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		AccountID: session.AccountID,
		Name:      session.Name,
		Priv:      int32(session.Priv),
		IsDonator: session.IsDonator(),
		IsStaff:   session.IsStaff(),
		ExpiresAt: expiresAt,
	})
}

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		writeError(w, http.StatusConflict, "already logged in")
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	if a.captcha != nil && a.captcha.Enabled() {
		if err := a.captcha.Verify(r.Context(), req.CaptchaToken, clientIP(r)); err != nil {
			writeError(w, http.StatusBadRequest, "captcha failed")
			return
		}
	}

	country := r.Header.Get("CF-IPCountry")
	account, err := a.auth.Register(r.Context(), req.Username, req.Email, req.Password, country)
	if err != nil {
		a.writeRegisterFailure(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"account_id": account.ID,
		"name":       account.Name,
		"country":    account.Country,
	})
	if a.stream != nil {
		a.stream.Publish(stream.AccountEvent{
			Type:      stream.EventRegistered,
			AccountID: account.ID,
			Name:      account.Name,
			Country:   account.Country,
		})
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"account_id": account.ID,
		"name":       account.Name,
		"status":     "pending_verification",
	})
}

func (a *API) writeRegisterFailure(w http.ResponseWriter, err error) {
	if ve, ok := auth.IsValidation(err); ok {
		writeReason(w, http.StatusBadRequest, "invalid "+ve.Field, ve.Reason)
		return
	}
	switch {
	case errors.Is(err, auth.ErrNameTaken):
		writeError(w, http.StatusConflict, "username already taken")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already taken")
	case errors.Is(err, auth.ErrRegistrationOff):
		writeError(w, http.StatusForbidden, "registration is currently disabled")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	if _, err := auth.Logout(session); err != nil {
		writeAuthFailure(w, err)
		return
	}
	a.clearSessionCookie(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

type settingsProfileRequest struct {
	NewName  string `json:"new_name,omitempty"`
	NewEmail string `json:"new_email,omitempty"`
}

func (a *API) handleSettingsProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req settingsProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ChangeIdentity(r.Context(), session, req.NewName, req.NewEmail); err != nil {
		a.writeIdentityFailure(w, err)
		return
	}

	// Identity changed: trust is invalidated, force re-login.
	a.clearSessionCookie(w)
	_ = audit.LogEvent(r.Context(), "auth.identity_changed", map[string]any{
		"name_changed":  req.NewName != "",
		"email_changed": req.NewEmail != "",
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "changed", "relogin_required": true})
}

func (a *API) writeIdentityFailure(w http.ResponseWriter, err error) {
	if ve, ok := auth.IsValidation(err); ok {
		writeReason(w, http.StatusBadRequest, "invalid "+ve.Field, ve.Reason)
		return
	}
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, auth.ErrNoChange):
		writeError(w, http.StatusBadRequest, "no changes have been made")
	case errors.Is(err, auth.ErrNameTaken):
		writeError(w, http.StatusConflict, "username already taken")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already taken")
	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "username changes are a supporter perk")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type settingsPasswordRequest struct {
	OldPassword    string `json:"old_password"`
	NewPassword    string `json:"new_password"`
	RepeatPassword string `json:"repeat_password"`
}

func (a *API) handleSettingsPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req settingsPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := a.auth.ChangePassword(r.Context(), session, req.OldPassword, req.NewPassword, req.RepeatPassword)
	if err != nil {
		a.writePasswordFailure(w, err)
		return
	}

	// Credential rotated: force re-login.
	a.clearSessionCookie(w)
	_ = audit.LogEvent(r.Context(), "auth.password_changed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "changed", "relogin_required": true})
}

func (a *API) writePasswordFailure(w http.ResponseWriter, err error) {
	if ve, ok := auth.IsValidation(err); ok {
		writeReason(w, http.StatusBadRequest, "invalid "+ve.Field, ve.Reason)
		return
	}
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, auth.ErrRepeatMismatch):
		writeError(w, http.StatusBadRequest, "new password does not match repeated password")
	case errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, http.StatusUnauthorized, "old password is incorrect")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
