package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oakmont/sitekeeper/internal/activity"
	"github.com/oakmont/sitekeeper/internal/database"
	"github.com/oakmont/sitekeeper/internal/engine"
	"github.com/oakmont/sitekeeper/internal/model"
	"github.com/oakmont/sitekeeper/internal/store"
)

// fakeRemote implements remote.ObjectClient in memory.
type fakeRemote struct {
	mu      sync.Mutex
	objects map[string][]byte
	delErr  error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: make(map[string][]byte)}
}

func (f *fakeRemote) Upload(_ context.Context, localPath string, jobID int64) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", 0, err
	}
	name := fmt.Sprintf("archives/job-%d.tar.gz", jobID)
	f.objects[name] = data
	return name, int64(len(data)), nil
}

func (f *fakeRemote) Download(_ context.Context, name, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	if !ok {
		return errors.New("no such object")
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (f *fakeRemote) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.objects, name)
	return nil
}

type schedEnv struct {
	sched    *Scheduler
	triggers *Triggers
	jobs     *store.JobStore
	settings *store.SettingsStore
	remote   *fakeRemote
	db       *sql.DB
}

func newSchedEnv(t *testing.T) *schedEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(filepath.Join(dir, "sitekeeper.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	siteDB, err := database.OpenSite(filepath.Join(dir, "site.db"))
	if err != nil {
		t.Fatalf("open site db: %v", err)
	}
	t.Cleanup(func() { siteDB.Close() })
	if _, err := siteDB.Exec(`CREATE TABLE posts (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("seed site db: %v", err)
	}

	roots := engine.Roots{
		Content:    filepath.Join(dir, "content"),
		Media:      filepath.Join(dir, "media"),
		Extensions: filepath.Join(dir, "extensions"),
		Themes:     filepath.Join(dir, "themes"),
		Work:       filepath.Join(dir, "work"),
	}
	if err := os.MkdirAll(roots.Content, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(roots.Content, "page.md"), []byte("body"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(roots.Work, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	remoteClient := newFakeRemote()
	jobs := store.NewJobStore(db)
	settings := store.NewSettingsStore(db)
	act := activity.NewLogger(store.NewActivityStore(db), slog.Default())
	eng := engine.New(engine.Config{Roots: roots}, engine.NewCoordinator(), jobs,
		remoteClient, siteDB, nil, act, nil, slog.Default())

	triggers := NewTriggers(slog.Default())
	sched := NewScheduler(eng, jobs, settings, remoteClient, triggers, nil, act, slog.Default())

	return &schedEnv{sched: sched, triggers: triggers, jobs: jobs, settings: settings, remote: remoteClient, db: db}
}

func (e *schedEnv) set(t *testing.T, key, value string) {
	t.Helper()
	if err := e.settings.Set(key, value); err != nil {
		t.Fatalf("set %s: %v", key, err)
	}
}

func TestSetupIdempotent(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "schedule_enabled", "true")

	if err := env.sched.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := env.sched.Setup(); err != nil {
		t.Fatalf("setup again: %v", err)
	}

	env.triggers.mu.RLock()
	defer env.triggers.mu.RUnlock()
	if len(env.triggers.entries) != 2 {
		t.Fatalf("trigger count = %d, want 2 (backup + cleanup)", len(env.triggers.entries))
	}
	if _, ok := env.triggers.entries[BackupTriggerName]; !ok {
		t.Error("backup trigger not armed")
	}
	if _, ok := env.triggers.entries[CleanupTriggerName]; !ok {
		t.Error("cleanup trigger not armed")
	}
}

func TestSetupDisabledOnlyDisarms(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "schedule_enabled", "true")
	if err := env.sched.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}

	env.set(t, "schedule_enabled", "false")
	if err := env.sched.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if env.triggers.Armed(BackupTriggerName) {
		t.Error("backup trigger still armed while disabled")
	}
	if !env.triggers.Armed(CleanupTriggerName) {
		t.Error("cleanup trigger should stay armed")
	}
}

func TestSetupInvalidTime(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "schedule_enabled", "true")
	env.set(t, "schedule_time_of_day", "25:99")

	if err := env.sched.Setup(); err == nil {
		t.Fatal("expected error for invalid time of day")
	}
	if env.triggers.Armed(BackupTriggerName) {
		t.Error("backup trigger armed despite invalid config")
	}
}

func TestRunScheduledBackup(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "schedule_enabled", "true")
	env.set(t, "schedule_components", "content")

	env.sched.RunScheduledBackup(context.Background())

	jobs, err := env.jobs.List(10)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("job count = %d, want 1", len(jobs))
	}
	if jobs[0].Status != model.JobStatusCompleted {
		t.Errorf("status = %q, want completed (error: %s)", jobs[0].Status, jobs[0].ErrorMessage)
	}
	if !jobs[0].Scheduled {
		t.Error("job not flagged as scheduled")
	}
	if !env.triggers.Armed(BackupTriggerName) {
		t.Error("next occurrence not re-armed")
	}
}

func TestRunScheduledBackupDisabled(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "schedule_enabled", "false")

	env.sched.RunScheduledBackup(context.Background())

	jobs, err := env.jobs.List(10)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("job count = %d, want 0 when disabled", len(jobs))
	}
	if env.triggers.Armed(BackupTriggerName) {
		t.Error("trigger armed despite disabled schedule")
	}
}

func TestCleanupOldBackups(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "retention_days", "30")

	old := makeCompletedJob(t, env, "old", -40)
	recent := makeCompletedJob(t, env, "recent", -5)

	removed, err := env.sched.CleanupOldBackups(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if j, _ := env.jobs.GetByID(old.ID); j != nil {
		t.Error("expired job row still present")
	}
	if j, _ := env.jobs.GetByID(recent.ID); j == nil {
		t.Error("recent job row was removed")
	}

	env.remote.mu.Lock()
	defer env.remote.mu.Unlock()
	if _, ok := env.remote.objects[old.ObjectName]; ok {
		t.Error("expired remote object still present")
	}
	if _, ok := env.remote.objects[recent.ObjectName]; !ok {
		t.Error("recent remote object was removed")
	}
}

func TestCleanupRetentionDisabled(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "retention_days", "0")

	makeCompletedJob(t, env, "old", -400)

	removed, err := env.sched.CleanupOldBackups(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 with retention disabled", removed)
	}
}

func TestCleanupRemoteDeleteFailureKeepsSweeping(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "retention_days", "30")
	env.remote.delErr = errors.New("remote unavailable")

	old := makeCompletedJob(t, env, "old", -40)

	removed, err := env.sched.CleanupOldBackups(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1 despite remote failure", removed)
	}
	if j, _ := env.jobs.GetByID(old.ID); j != nil {
		t.Error("row should be deleted even when remote delete fails")
	}
}

func TestTestScheduleDoesNotArm(t *testing.T) {
	env := newSchedEnv(t)
	env.set(t, "schedule_enabled", "true")

	next, err := env.sched.TestSchedule()
	if err != nil {
		t.Fatalf("test schedule: %v", err)
	}
	if !next.After(time.Now()) {
		t.Errorf("next = %v, want future", next)
	}
	if env.triggers.Armed(BackupTriggerName) {
		t.Error("test schedule armed a trigger")
	}
}

// makeCompletedJob inserts a completed job whose completed_at lies days in
// the past (days is negative).
func makeCompletedJob(t *testing.T, env *schedEnv, name string, days int) *model.BackupJob {
	t.Helper()
	job, err := env.jobs.Create(name, []model.Component{model.ComponentDatabase}, false)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	objectName := fmt.Sprintf("archives/job-%d.tar.gz", job.ID)
	if err := env.jobs.MarkCompleted(job.ID, objectName, 128); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	completedAt := time.Now().UTC().AddDate(0, 0, days)
	if _, err := env.db.Exec(`UPDATE jobs SET completed_at = ? WHERE id = ?`, completedAt, job.ID); err != nil {
		t.Fatalf("backdate job: %v", err)
	}
	env.remote.mu.Lock()
	env.remote.objects[objectName] = []byte("archive")
	env.remote.mu.Unlock()
	job.ObjectName = objectName
	return job
}
