// Package api exposes the operator HTTP surface and the live viewer websocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pranav24547/Ai-Surveillance-System/internal/live"
	"github.com/pranav24547/Ai-Surveillance-System/internal/logger"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
	"github.com/pranav24547/Ai-Surveillance-System/internal/runner"
)

type Controller interface {
	Apply(ctx context.Context, cmd models.ControlCommand) (any, error)
	Status() runner.Status
}

type EvidenceReader interface {
	ListRecent(limit int, weaponType string) []models.EvidenceRecord
	Image(id string, annotated bool) ([]byte, error)
}

type AlertHistory interface {
	Recent(limit int) []models.AlertRecord
}

type Handlers struct {
	control  Controller
	evidence EvidenceReader
	alerts   AlertHistory
	hub      *live.Hub
	upgrader websocket.Upgrader
	// WriteTimeout bounds every websocket write.
	WriteTimeout time.Duration
	log          zerolog.Logger
}

func NewHandlers(control Controller, evidence EvidenceReader, alerts AlertHistory, hub *live.Hub) *Handlers {
	return &Handlers{
		control:  control,
		evidence: evidence,
		alerts:   alerts,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		WriteTimeout: 5 * time.Second,
		log:          logger.Component("api"),
	}
}

// NewRouter registers every endpoint. Mutating endpoints require one of apiKeys when the list is
// not empty.
func NewRouter(h *Handlers, apiKeys []string) *mux.Router {
	r := mux.NewRouter()
	guard := RequireAPIKey(apiKeys)

	r.HandleFunc("/", h.GetInfoHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/status", h.GetStatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/detections", h.GetDetectionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", h.GetAlertsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/evidence/{id}", h.GetEvidenceHandler).Methods(http.MethodGet)
	r.Handle("/api/config", guard(http.HandlerFunc(h.UpdateConfigHandler))).Methods(http.MethodPost)
	r.Handle("/api/alerts/test", guard(http.HandlerFunc(h.TestAlertHandler))).Methods(http.MethodPost)
	r.Handle("/api/alerts/reset-cooldown", guard(http.HandlerFunc(h.ResetCooldownHandler))).Methods(http.MethodPost)
	r.Handle("/api/evidence", guard(http.HandlerFunc(h.ClearEvidenceHandler))).Methods(http.MethodDelete)
	r.HandleFunc("/ws/stream", h.StreamHandler).Methods(http.MethodGet)

	return r
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("write response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
