package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oakmont/sitekeeper/internal/archive"
	"github.com/oakmont/sitekeeper/internal/dump"
	"github.com/oakmont/sitekeeper/internal/mirror"
	"github.com/oakmont/sitekeeper/internal/model"
)

// Restore downloads a completed job's archive and swaps each requested
// component back into place. If override is non-empty, only the intersection
// of the job's components with override is restored.
func (e *Engine) Restore(ctx context.Context, jobID int64, override []string) (err error) {
	if !e.coord.TryAcquireRestore() {
		return fmt.Errorf("%w: restore already running", ErrConcurrency)
	}
	defer e.coord.ReleaseRestore()

	if e.remote == nil {
		return ErrNotConfigured
	}

	job, err := e.jobs.GetByID(jobID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if job == nil || job.Status != model.JobStatusCompleted || job.ObjectName == "" {
		return fmt.Errorf("%w: job %d is not a completed backup", ErrNotFound, jobID)
	}

	e.setStatus(Status{State: StateRestoring, JobID: jobID, InProgress: true})
	defer func() {
		if err != nil {
			e.logger.Error("restore failed", "job", jobID, "error", err)
			e.activity.Record("restore", "failed", "job", jobID, map[string]string{"error": err.Error()})
			e.setStatus(Status{State: StateError, JobID: jobID, Error: err.Error()})
		}
	}()

	scratch := filepath.Join(e.cfg.Roots.Work, fmt.Sprintf("restore-%d-%d", jobID, time.Now().UnixNano()))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if cleanErr := mirror.RemoveTree(scratch); cleanErr != nil {
			e.logger.Warn("cleanup scratch directory", "job", jobID, "error", cleanErr)
		}
	}()

	archivePath := filepath.Join(scratch, filepath.Base(job.ObjectName))
	if err := e.remote.Download(ctx, job.ObjectName, archivePath); err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}

	if strings.HasSuffix(archivePath, ".enc") {
		if e.cfg.Passphrase == "" {
			return fmt.Errorf("%w: archive is encrypted and no passphrase is configured", ErrExtract)
		}
		decPath := strings.TrimSuffix(archivePath, ".enc")
		if err := archive.DecryptFile(archivePath, decPath, e.cfg.Passphrase); err != nil {
			return fmt.Errorf("%w: %v", ErrExtract, err)
		}
		archivePath = decPath
	}

	extracted := filepath.Join(scratch, "extracted")
	if err := archive.Extract(archivePath, extracted); err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}

	effective := effectiveComponents(job.Components, override)
	if len(effective) == 0 {
		return fmt.Errorf("%w: no components to restore", ErrValidation)
	}

	// Safety net, not a precondition: a failed safety backup is a warning.
	safetyName := fmt.Sprintf("Pre-restore safety backup - %s", time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err := e.safetyBackup(ctx, safetyName); err != nil {
		e.logger.Warn("safety backup failed, continuing restore", "job", jobID, "error", err)
	}
	e.setStatus(Status{State: StateRestoring, JobID: jobID, InProgress: true})

	for _, c := range effective {
		if err := e.restoreComponent(c, extracted); err != nil {
			return err
		}
	}

	// Best-effort, never fatal.
	e.invalidateCaches()

	e.logger.Info("restore completed", "job", jobID, "components", model.JoinComponents(effective))
	e.activity.Record("restore", "completed", "job", jobID, map[string]string{
		"components": model.JoinComponents(effective),
	})
	e.setStatus(Status{State: StateIdle, JobID: jobID})
	return nil
}

// effectiveComponents intersects the job's original set with the caller's
// override, keeping the job's order. An empty override means everything.
func effectiveComponents(original []model.Component, override []string) []model.Component {
	if len(override) == 0 {
		return original
	}
	wanted := model.FilterComponents(override)
	want := make(map[model.Component]bool, len(wanted))
	for _, c := range wanted {
		want[c] = true
	}
	var out []model.Component
	for _, c := range original {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) restoreComponent(c model.Component, extracted string) error {
	if c == model.ComponentDatabase {
		return e.restoreDatabase(extracted)
	}
	return e.restoreDirectory(c, extracted)
}

func (e *Engine) restoreDatabase(extracted string) error {
	dumpPath := filepath.Join(extracted, "database.sql")
	if _, err := os.Stat(dumpPath); err != nil {
		return fmt.Errorf("%w: database dump missing from archive", ErrNotFound)
	}
	executed, err := dump.Replay(e.siteDB, dumpPath, e.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRestore, err)
	}
	e.logger.Info("database restored", "statements", executed)
	return nil
}

// copyTree is swappable in tests to exercise the rollback path.
var copyTree = mirror.CopyTree

func (e *Engine) restoreDirectory(c model.Component, extracted string) error {
	src := filepath.Join(extracted, string(c))
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: component %s missing from archive", ErrNotFound, c)
	}

	if c == model.ComponentExtensions {
		// Clear the registry around the swap so the framework never loads a
		// half-swapped directory; reactivation happens regardless of outcome.
		saved, err := e.registry.ActiveExtensions()
		if err != nil {
			e.logger.Warn("read active extensions", "error", err)
		}
		if err := e.registry.SetActiveExtensions(nil); err != nil {
			e.logger.Warn("deactivate extensions", "error", err)
		}
		defer func() {
			if err := e.registry.SetActiveExtensions(saved); err != nil {
				e.logger.Warn("reactivate extensions", "error", err)
			}
		}()
	}

	sw := newSwap(e.cfg.Roots.For(c))
	if err := sw.stage(); err != nil {
		return fmt.Errorf("%w: stage %s: %v", ErrRestore, c, err)
	}

	if _, err := copyTree(src, sw.live, nil); err != nil {
		if rbErr := sw.rollback(); rbErr != nil {
			e.logger.Error("rollback failed, live directory left staged",
				"component", c, "staged", sw.staged, "error", rbErr)
		}
		return fmt.Errorf("%w: copy %s: %v", ErrRestore, c, err)
	}

	if err := sw.commit(); err != nil {
		// The new tree is live; losing the staged copy is only a leak.
		e.logger.Warn("remove staged backup", "component", c, "error", err)
	}
	e.logger.Info("component restored", "component", c)
	return nil
}

// swapState tracks the per-component directory transition
// live -> staged-backup -> committed | rolled-back.
type swapState int

const (
	swapLive swapState = iota
	swapStaged
	swapCommitted
	swapRolledBack
)

// swap replaces a live directory via rename, copy, and rollback-on-failure.
type swap struct {
	live   string
	staged string
	state  swapState
}

func newSwap(live string) *swap {
	return &swap{
		live:   live,
		staged: fmt.Sprintf("%s.pre-restore-%s", live, time.Now().UTC().Format("20060102T150405")),
	}
}

// stage renames the live directory aside. A missing live directory stages
// nothing; there is then no rollback target.
func (s *swap) stage() error {
	if _, err := os.Stat(s.live); os.IsNotExist(err) {
		s.staged = ""
		s.state = swapStaged
		return nil
	}
	if err := os.Rename(s.live, s.staged); err != nil {
		return err
	}
	s.state = swapStaged
	return nil
}

// rollback removes whatever was partially copied into the live path and
// renames the staged directory back, leaving the component byte-identical
// to its pre-restore state.
func (s *swap) rollback() error {
	if s.state != swapStaged {
		return fmt.Errorf("rollback from state %d", s.state)
	}
	if err := os.RemoveAll(s.live); err != nil {
		return fmt.Errorf("remove partial copy: %w", err)
	}
	if s.staged != "" {
		if err := os.Rename(s.staged, s.live); err != nil {
			return fmt.Errorf("restore staged directory: %w", err)
		}
	}
	s.state = swapRolledBack
	return nil
}

// commit deletes the staged pre-restore copy.
func (s *swap) commit() error {
	s.state = swapCommitted
	if s.staged == "" {
		return nil
	}
	return os.RemoveAll(s.staged)
}
