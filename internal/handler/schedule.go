package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oakmont/sitekeeper/internal/model"
	"github.com/oakmont/sitekeeper/internal/schedule"
	"github.com/oakmont/sitekeeper/internal/store"
	"github.com/oakmont/sitekeeper/internal/websocket"
)

var timeFormatRegexp = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

var validFrequencies = map[string]bool{
	schedule.FreqHourly:  true,
	schedule.FreqDaily:   true,
	schedule.FreqWeekly:  true,
	schedule.FreqMonthly: true,
}

type ScheduleHandler struct {
	settingsStore *store.SettingsStore
	scheduler     *schedule.Scheduler
	hub           *websocket.Hub
}

func NewScheduleHandler(ss *store.SettingsStore, sched *schedule.Scheduler, hub *websocket.Hub) *ScheduleHandler {
	return &ScheduleHandler{settingsStore: ss, scheduler: sched, hub: hub}
}

func (h *ScheduleHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsStore.GetScheduleSettings()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get settings"})
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update saves schedule settings and re-arms the recurring trigger so the
// new configuration takes effect immediately.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := validateScheduleSettings(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	for key, value := range req {
		if err := h.settingsStore.Set(key, value); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save settings"})
			return
		}
	}

	if err := h.scheduler.Setup(); err != nil {
		log.Printf("failed to re-arm schedule: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to apply schedule"})
		return
	}

	h.broadcast(websocket.JobMessage("schedule_updated", 0))

	settings, err := h.settingsStore.GetScheduleSettings()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get settings"})
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Test validates the stored configuration and reports the computed next run
// without arming anything.
func (h *ScheduleHandler) Test(w http.ResponseWriter, r *http.Request) {
	next, err := h.scheduler.TestSchedule()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"next_run_time": next.UTC().Format(time.RFC3339),
	})
}

func validateScheduleSettings(settings map[string]string) error {
	allowedKeys := map[string]bool{
		"schedule_enabled":     true,
		"schedule_frequency":   true,
		"schedule_time_of_day": true,
		"schedule_components":  true,
		"retention_days":       true,
		"notification_email":   true,
	}

	for key, value := range settings {
		if !allowedKeys[key] {
			return fmt.Errorf("unknown setting: %s", key)
		}

		switch key {
		case "schedule_enabled":
			if value != "true" && value != "false" {
				return fmt.Errorf("schedule_enabled must be \"true\" or \"false\"")
			}
		case "schedule_frequency":
			if !validFrequencies[value] {
				return fmt.Errorf("schedule_frequency must be hourly, daily, weekly, or monthly")
			}
		case "schedule_time_of_day":
			if !timeFormatRegexp.MatchString(value) {
				return fmt.Errorf("schedule_time_of_day must be HH:MM format")
			}
		case "schedule_components":
			if len(model.FilterComponents(strings.Split(value, ","))) == 0 {
				return fmt.Errorf("schedule_components must name at least one of database, content, media, extensions, themes")
			}
		case "retention_days":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 3650 {
				return fmt.Errorf("retention_days must be 0-3650")
			}
		case "notification_email":
			if value != "" && !strings.Contains(value, "@") {
				return fmt.Errorf("notification_email must be a valid address or empty")
			}
		}
	}
	return nil
}
