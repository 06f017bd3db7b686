package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/oakmont/sitekeeper/internal/engine"
	"github.com/oakmont/sitekeeper/internal/model"
	"github.com/oakmont/sitekeeper/internal/store"
	"github.com/oakmont/sitekeeper/internal/websocket"
)

const listLimit = 100

type BackupHandler struct {
	engine   *engine.Engine
	jobStore *store.JobStore
	hub      *websocket.Hub
}

func NewBackupHandler(eng *engine.Engine, js *store.JobStore, hub *websocket.Hub) *BackupHandler {
	return &BackupHandler{engine: eng, jobStore: js, hub: hub}
}

func (h *BackupHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type backupRequest struct {
	Name       string   `json:"name"`
	Components []string `json:"components"`
}

// Create runs a backup to completion and returns the finished job. The
// engine rejects the request up front when another backup is running.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	jobID, err := h.engine.CreateBackup(r.Context(), req.Name, req.Components, false)
	if err != nil {
		log.Printf("backup %q failed: %v", req.Name, err)
		if jobID != 0 {
			h.broadcast(websocket.JobMessage("job_failed", jobID))
		}
		writeEngineError(w, err)
		return
	}

	h.broadcast(websocket.JobMessage("job_completed", jobID))

	job, err := h.jobStore.GetByID(jobID)
	if err != nil || job == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobStore.List(listLimit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list backups"})
		return
	}
	if jobs == nil {
		jobs = []model.BackupJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *BackupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	job, err := h.jobStore.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get backup"})
		return
	}
	if job == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "backup not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type restoreRequest struct {
	// Components optionally restores a subset of what the archive holds.
	Components []string `json:"components"`
}

func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req restoreRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
	}

	if err := h.engine.Restore(r.Context(), id, req.Components); err != nil {
		log.Printf("restore of job %d failed: %v", id, err)
		h.broadcast(websocket.JobMessage("restore_failed", id))
		writeEngineError(w, err)
		return
	}

	h.broadcast(websocket.JobMessage("restore_completed", id))
	writeJSON(w, http.StatusOK, map[string]any{"status": "restored", "job_id": id})
}
