package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"seiran.gg/internal/auth"
)

// Events handles Server-Sent Events for the admin live feed. Staff only.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if !session.IsStaff() {
		writeError(w, http.StatusForbidden, "staff only")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
