package handler

import (
	"net/http"
	"strconv"

	"github.com/oakmont/sitekeeper/internal/model"
	"github.com/oakmont/sitekeeper/internal/store"
)

var validActivityDomains = map[string]bool{
	"backup":   true,
	"restore":  true,
	"schedule": true,
}

type ActivityHandler struct {
	activityStore *store.ActivityStore
}

func NewActivityHandler(as *store.ActivityStore) *ActivityHandler {
	return &ActivityHandler{activityStore: as}
}

// List returns recent activity for one domain, newest first.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	if domain == "" {
		domain = "backup"
	}
	if !validActivityDomains[domain] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "domain must be backup, restore, or schedule"})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1-500"})
			return
		}
		limit = n
	}

	entries, err := h.activityStore.ListRecent(domain, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list activity"})
		return
	}
	if entries == nil {
		entries = []model.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
