// Package server wires the stores, engine, and scheduler together and
// exposes them over HTTP.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/oakmont/sitekeeper/internal/activity"
	"github.com/oakmont/sitekeeper/internal/engine"
	"github.com/oakmont/sitekeeper/internal/handler"
	"github.com/oakmont/sitekeeper/internal/middleware"
	"github.com/oakmont/sitekeeper/internal/notify"
	"github.com/oakmont/sitekeeper/internal/remote"
	"github.com/oakmont/sitekeeper/internal/schedule"
	"github.com/oakmont/sitekeeper/internal/store"
	ws "github.com/oakmont/sitekeeper/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	backupH     *handler.BackupHandler
	scheduleH   *handler.ScheduleHandler
	statusH     *handler.StatusHandler
	activityH   *handler.ActivityHandler
	jobStore    *store.JobStore
	engine      *engine.Engine
	scheduler   *schedule.Scheduler
	triggers    *schedule.Triggers
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// Config carries everything New needs beyond the open database handles.
type Config struct {
	Roots      engine.Roots
	Passphrase string
	S3         remote.Config
	Mailer     *notify.Client
	Registry   engine.ExtensionRegistry
}

func New(db, siteDB *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	jobStore := store.NewJobStore(db)
	settingsStore := store.NewSettingsStore(db)
	activityStore := store.NewActivityStore(db)
	act := activity.NewLogger(activityStore, logger.With("component", "activity"))

	var remoteClient remote.ObjectClient
	if cfg.S3.Configured() {
		remoteClient = remote.NewS3Store(cfg.S3)
	} else {
		logger.Warn("object storage not configured; backups and restores are disabled")
	}

	eng := engine.New(
		engine.Config{Roots: cfg.Roots, Passphrase: cfg.Passphrase},
		engine.NewCoordinator(), jobStore, remoteClient, siteDB, cfg.Registry, act,
		func(st engine.Status) { hub.Broadcast(ws.StatusMessage(st)) },
		logger.With("component", "engine"),
	)

	triggers := schedule.NewTriggers(logger.With("component", "triggers"))
	scheduler := schedule.NewScheduler(eng, jobStore, settingsStore, remoteClient,
		triggers, cfg.Mailer, act, logger.With("component", "scheduler"))

	return &Server{
		db:          db,
		hub:         hub,
		backupH:     handler.NewBackupHandler(eng, jobStore, hub),
		scheduleH:   handler.NewScheduleHandler(settingsStore, scheduler, hub),
		statusH:     handler.NewStatusHandler(eng, triggers, hub),
		activityH:   handler.NewActivityHandler(activityStore),
		jobStore:    jobStore,
		engine:      eng,
		scheduler:   scheduler,
		triggers:    triggers,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Engine returns the backup engine, for wiring framework cache listeners.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Scheduler returns the scheduler for startup arming.
func (s *Server) Scheduler() *schedule.Scheduler {
	return s.scheduler
}

// Triggers returns the trigger registry so main can start and stop its loop.
func (s *Server) Triggers() *schedule.Triggers {
	return s.triggers
}

// JobStore returns the job store for startup cleanup tasks.
func (s *Server) JobStore() *store.JobStore {
	return s.jobStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Backup jobs. Creation and restore are rate limited since each run is
	// expensive and exclusive anyway.
	mux.HandleFunc("POST /api/backups", s.rateLimitedHandler(s.backupH.Create))
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("GET /api/backups/{id}", s.backupH.Get)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.rateLimitedHandler(s.backupH.Restore))

	// Schedule settings
	mux.HandleFunc("GET /api/settings/schedule", s.scheduleH.Get)
	mux.HandleFunc("PUT /api/settings/schedule", s.scheduleH.Update)
	mux.HandleFunc("POST /api/schedule/test", s.scheduleH.Test)

	mux.HandleFunc("GET /api/status", s.statusH.Get)
	mux.HandleFunc("GET /api/activity", s.activityH.List)

	// WebSocket status stream
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
