package api

import (
	"encoding/json"
	"net/http"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

type configRequest struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	AlertsEnabled       *bool    `json:"alerts_enabled"`
	CooldownSeconds     *float64 `json:"cooldown_seconds"`
}

// UpdateConfigHandler applies the runtime settings present in the body. Fields are validated
// before any of them is applied.
func (h *Handlers) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var cmds []models.ControlCommand
	if v := req.ConfidenceThreshold; v != nil {
		if *v < 0 || *v > 1 {
			h.writeError(w, http.StatusBadRequest, "confidence_threshold must be between 0 and 1")
			return
		}
		cmds = append(cmds, models.ControlCommand{Action: models.CommandSetThreshold, Value: *v})
	}
	if v := req.AlertsEnabled; v != nil {
		cmds = append(cmds, models.ControlCommand{Action: models.CommandSetAlertsEnabled, Enabled: v})
	}
	if v := req.CooldownSeconds; v != nil {
		if *v < 0 {
			h.writeError(w, http.StatusBadRequest, "cooldown_seconds must not be negative")
			return
		}
		cmds = append(cmds, models.ControlCommand{Action: models.CommandSetCooldown, Value: *v})
	}
	if len(cmds) == 0 {
		h.writeError(w, http.StatusBadRequest, "no settings given")
		return
	}

	updated := make([]any, 0, len(cmds))
	for _, cmd := range cmds {
		res, err := h.control.Apply(r.Context(), cmd)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated = append(updated, res)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}
