package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"careportal.org/internal/auth"
)

// handleAuditEvents serves the live audit feed as server-sent events. Only
// system administrators may watch it.
func (a *API) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.HasRole(auth.RoleSystemAdmin) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for entry := range a.events.Subscribe(r.Context()) {
		payload, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", entry.Event, payload)
		flusher.Flush()
	}
}
