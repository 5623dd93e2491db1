package api

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	defaultDetectionLimit = 20
	maxDetectionLimit     = 100
	defaultAlertLimit     = 10
	maxAlertLimit         = 50
)

// GetDetectionsHandler lists saved evidence newest first, optionally filtered by weapon_type.
func (h *Handlers) GetDetectionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r, defaultDetectionLimit, maxDetectionLimit)
	if !ok {
		return
	}
	records := h.evidence.ListRecent(limit, r.URL.Query().Get("weapon_type"))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"detections": records,
		"count":      len(records),
	})
}

// limit parses the limit query parameter, falling back to def. Values outside [1, upper] are
// rejected.
func (h *Handlers) limit(w http.ResponseWriter, r *http.Request, def, upper int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be an integer between 1 and %d", upper))
		return 0, false
	}
	return n, true
}
