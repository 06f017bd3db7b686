// Package schedule computes recurring backup times, arms the triggers that
// fire them, enforces retention, and sends notification email.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oakmont/sitekeeper/internal/activity"
	"github.com/oakmont/sitekeeper/internal/engine"
	"github.com/oakmont/sitekeeper/internal/notify"
	"github.com/oakmont/sitekeeper/internal/remote"
	"github.com/oakmont/sitekeeper/internal/store"
)

const (
	// BackupTriggerName is the recurring backup trigger.
	BackupTriggerName = "scheduled-backup"
	// CleanupTriggerName is the weekly retention sweep trigger. It is armed
	// independently of the backup schedule and is not user-configurable.
	CleanupTriggerName = "retention-cleanup"

	cleanupInterval = 7 * 24 * time.Hour
)

// Config is the schedule configuration read from the settings store.
type Config struct {
	Enabled           bool
	Frequency         string
	TimeOfDay         string
	Components        []string
	RetentionDays     int
	NotificationEmail string
}

// ConfigFromSettings builds a Config from the schedule settings keys.
func ConfigFromSettings(settings map[string]string) Config {
	retention, _ := strconv.Atoi(settings["retention_days"])
	return Config{
		Enabled:           settings["schedule_enabled"] == "true",
		Frequency:         settings["schedule_frequency"],
		TimeOfDay:         settings["schedule_time_of_day"],
		Components:        strings.Split(settings["schedule_components"], ","),
		RetentionDays:     retention,
		NotificationEmail: settings["notification_email"],
	}
}

// Scheduler arms recurring triggers and runs scheduled backups and
// retention sweeps. Component failures are swallowed into logs; only
// TestSchedule surfaces configuration errors to a caller.
type Scheduler struct {
	engine   *engine.Engine
	jobs     *store.JobStore
	settings *store.SettingsStore
	remote   remote.ObjectClient
	triggers *Triggers
	mailer   *notify.Client
	activity *activity.Logger
	logger   *slog.Logger

	now func() time.Time
}

func NewScheduler(eng *engine.Engine, jobs *store.JobStore, settings *store.SettingsStore,
	remoteClient remote.ObjectClient, triggers *Triggers, mailer *notify.Client,
	act *activity.Logger, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:   eng,
		jobs:     jobs,
		settings: settings,
		remote:   remoteClient,
		triggers: triggers,
		mailer:   mailer,
		activity: act,
		logger:   logger,
		now:      time.Now,
	}
}

// Setup arms the recurring backup trigger from the current settings,
// disarming any existing one first so repeated calls never accumulate
// duplicates. When scheduling is disabled it only disarms. The weekly
// cleanup trigger is armed regardless.
func (s *Scheduler) Setup() error {
	cfg, err := s.config()
	if err != nil {
		return err
	}

	s.triggers.Disarm(BackupTriggerName)
	if cfg.Enabled {
		next, err := NextRunTime(cfg.Frequency, cfg.TimeOfDay, s.now())
		if err != nil {
			return fmt.Errorf("compute next run: %w", err)
		}
		s.triggers.Arm(BackupTriggerName, next, s.RunScheduledBackup)
	}

	if !s.triggers.Armed(CleanupTriggerName) {
		s.armCleanup()
	}
	return nil
}

func (s *Scheduler) armCleanup() {
	s.triggers.Arm(CleanupTriggerName, s.now().Add(cleanupInterval), func(ctx context.Context) {
		if _, err := s.CleanupOldBackups(ctx); err != nil {
			s.logger.Error("retention sweep failed", "error", err)
		}
		s.armCleanup()
	})
}

func (s *Scheduler) config() (Config, error) {
	settings, err := s.settings.GetScheduleSettings()
	if err != nil {
		return Config{}, fmt.Errorf("read schedule settings: %w", err)
	}
	return ConfigFromSettings(settings), nil
}

// RunScheduledBackup is the backup trigger target. It re-checks the enabled
// flag (the trigger should already be disarmed when disabled, but this guards
// races), creates a backup with the configured components, notifies, and
// re-arms the next occurrence regardless of the outcome.
func (s *Scheduler) RunScheduledBackup(ctx context.Context) {
	cfg, err := s.config()
	if err != nil {
		s.logger.Error("scheduled backup: read settings", "error", err)
		return
	}
	if !cfg.Enabled {
		s.logger.Info("scheduled backup skipped: scheduling disabled")
		return
	}

	defer func() {
		if next, err := NextRunTime(cfg.Frequency, cfg.TimeOfDay, s.now()); err == nil {
			s.triggers.Arm(BackupTriggerName, next, s.RunScheduledBackup)
		} else {
			s.logger.Error("re-arm scheduled backup", "error", err)
		}
	}()

	name := fmt.Sprintf("Scheduled Backup - %s", s.now().UTC().Format("2006-01-02 15:04"))
	jobID, err := s.engine.CreateBackup(ctx, name, cfg.Components, true)
	if err != nil {
		s.logger.Error("scheduled backup failed", "job", jobID, "error", err)
		s.activity.Record("schedule", "backup_failed", "job", jobID, map[string]string{"error": err.Error()})
		s.notifyFailure(cfg, name, err)
		return
	}

	s.logger.Info("scheduled backup completed", "job", jobID)
	s.activity.Record("schedule", "backup_completed", "job", jobID, nil)
	s.notifySuccess(cfg, name, jobID)
}

func (s *Scheduler) notifySuccess(cfg Config, name string, jobID int64) {
	if s.mailer == nil || !s.mailer.Configured() || cfg.NotificationEmail == "" {
		return
	}
	var size int64
	if job, err := s.jobs.GetByID(jobID); err == nil && job != nil {
		size = job.SizeBytes
	}
	if err := s.mailer.SendBackupSucceeded(cfg.NotificationEmail, name, size); err != nil {
		s.logger.Warn("send success notification", "error", err)
	}
}

func (s *Scheduler) notifyFailure(cfg Config, name string, backupErr error) {
	if s.mailer == nil || !s.mailer.Configured() || cfg.NotificationEmail == "" {
		return
	}
	if err := s.mailer.SendBackupFailed(cfg.NotificationEmail, name, backupErr.Error()); err != nil {
		s.logger.Warn("send failure notification", "error", err)
	}
}

// CleanupOldBackups removes completed jobs older than the retention window:
// for each, the remote object is deleted best-effort first, then the row.
// It returns the number of rows removed. A retention of zero or less
// disables the sweep.
func (s *Scheduler) CleanupOldBackups(ctx context.Context) (int, error) {
	cfg, err := s.config()
	if err != nil {
		return 0, err
	}
	if cfg.RetentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -cfg.RetentionDays)
	expired, err := s.jobs.ListCompletedBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired jobs: %w", err)
	}

	removed := 0
	for _, job := range expired {
		if s.remote != nil && job.ObjectName != "" {
			if err := s.remote.Delete(ctx, job.ObjectName); err != nil {
				s.logger.Warn("delete remote object", "job", job.ID, "object", job.ObjectName, "error", err)
			}
		}
		if err := s.jobs.Delete(job.ID); err != nil {
			s.logger.Error("delete expired job row", "job", job.ID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("retention sweep removed jobs", "count", removed)
		s.activity.Record("schedule", "retention_sweep", "job", 0, map[string]string{
			"removed": strconv.Itoa(removed),
		})
	}
	return removed, nil
}

// TestSchedule validates the current schedule configuration and returns the
// computed next run time. It never arms or disarms anything.
func (s *Scheduler) TestSchedule() (time.Time, error) {
	cfg, err := s.config()
	if err != nil {
		return time.Time{}, err
	}
	return NextRunTime(cfg.Frequency, cfg.TimeOfDay, s.now())
}
