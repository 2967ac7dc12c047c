package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"seiran.gg/internal/auth"
	"seiran.gg/internal/stats"
)

type profileResponse struct {
	AccountID int64      `json:"account_id"`
	Name      string     `json:"name"`
	Country   string     `json:"country"`
	Priv      int32      `json:"priv"`
	Stats     *stats.Row `json:"stats,omitempty"`
}

// handleUserResource serves GET /v1/users/{id-or-name}?mode=N. Lookup works
// by numeric id or by name (display or normalized). Banned accounts are
// invisible unless the viewer is staff.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	ref := auth.RefByName(key)
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		ref = auth.RefByID(id)
	}

	account, err := a.auth.Account(r.Context(), ref)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	if !account.Priv.IsNormal() && !session.IsStaff() {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	resp := profileResponse{
		AccountID: account.ID,
		Name:      account.Name,
		Country:   account.Country,
		Priv:      int32(account.Priv),
	}

	mode := stats.VanillaStandard
	if raw := r.URL.Query().Get("mode"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !stats.Mode(n).Valid() {
			writeError(w, http.StatusBadRequest, "invalid mode")
			return
		}
		mode = stats.Mode(n)
	}
	if a.stats != nil {
		if row, err := a.stats.ForAccount(r.Context(), account.ID, mode); err == nil {
			resp.Stats = &row
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type leaderboardResponse struct {
	Mode    stats.Mode    `json:"mode"`
	Entries []stats.Entry `json:"entries"`
}

// handleLeaderboard serves GET /v1/leaderboard/{mode}?limit=N&offset=M.
func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if a.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "statistics unavailable")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/v1/leaderboard/")
	n, err := strconv.Atoi(raw)
	if err != nil || !stats.Mode(n).Valid() {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}
	mode := stats.Mode(n)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := a.stats.Leaderboard(r.Context(), mode, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Mode: mode, Entries: entries})
}
