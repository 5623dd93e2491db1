package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pranav24547/Ai-Surveillance-System/internal/evidence"
)

// GetEvidenceHandler serves the raw JPEG of an evidence record, or the annotated one when
// annotated=true.
func (h *Handlers) GetEvidenceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	annotated := false
	if raw := r.URL.Query().Get("annotated"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "annotated must be a boolean")
			return
		}
		annotated = v
	}

	data, err := h.evidence.Image(id, annotated)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "evidence not found")
			return
		}
		h.log.Error().Err(err).Str("id", id).Msg("read evidence image")
		h.writeError(w, http.StatusInternalServerError, "failed to read evidence")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		h.log.Debug().Err(err).Str("id", id).Msg("write evidence image")
	}
}
