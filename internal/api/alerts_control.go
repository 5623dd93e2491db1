package api

import (
	"net/http"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

// TestAlertHandler sends a forced alert through every configured channel.
func (h *Handlers) TestAlertHandler(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, models.ControlCommand{
		Action:     models.CommandTestAlert,
		WeaponType: r.URL.Query().Get("weapon_type"),
	})
}

// ResetCooldownHandler clears the alert cooldown of weapon_type, or of every class when absent.
func (h *Handlers) ResetCooldownHandler(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, models.ControlCommand{
		Action:     models.CommandResetCooldown,
		WeaponType: r.URL.Query().Get("weapon_type"),
	})
}

func (h *Handlers) ClearEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, models.ControlCommand{Action: models.CommandClearEvidence})
}

func (h *Handlers) apply(w http.ResponseWriter, r *http.Request, cmd models.ControlCommand) {
	res, err := h.control.Apply(r.Context(), cmd)
	if err != nil {
		h.log.Error().Err(err).Str("action", string(cmd.Action)).Msg("command failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}
