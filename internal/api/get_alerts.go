package api

import "net/http"

func (h *Handlers) GetAlertsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r, defaultAlertLimit, maxAlertLimit)
	if !ok {
		return
	}
	records := h.alerts.Recent(limit)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": records,
		"count":  len(records),
	})
}
