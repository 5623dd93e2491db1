package api

import "net/http"

// GetInfoHandler describes the service and its endpoints.
func (h *Handlers) GetInfoHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"name":       "AI Surveillance System",
		"status":     "running",
		"stream":     "/ws/stream",
		"status_url": "/api/status",
	})
}

func (h *Handlers) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.control.Status())
}
