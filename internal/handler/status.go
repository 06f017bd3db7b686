package handler

import (
	"net/http"
	"time"

	"github.com/oakmont/sitekeeper/internal/engine"
	"github.com/oakmont/sitekeeper/internal/schedule"
	"github.com/oakmont/sitekeeper/internal/websocket"
)

type StatusHandler struct {
	engine   *engine.Engine
	triggers *schedule.Triggers
	hub      *websocket.Hub
}

func NewStatusHandler(eng *engine.Engine, triggers *schedule.Triggers, hub *websocket.Hub) *StatusHandler {
	return &StatusHandler{engine: eng, triggers: triggers, hub: hub}
}

type statusResponse struct {
	Engine      engine.Status `json:"engine"`
	NextBackup  string        `json:"next_backup,omitempty"`
	ClientCount int           `json:"websocket_clients"`
}

func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Engine: h.engine.Status()}
	if h.triggers != nil {
		if due, ok := h.triggers.Due(schedule.BackupTriggerName); ok {
			resp.NextBackup = due.UTC().Format(time.RFC3339)
		}
	}
	if h.hub != nil {
		resp.ClientCount = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
