package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oakmont/sitekeeper/internal/archive"
	"github.com/oakmont/sitekeeper/internal/dump"
	"github.com/oakmont/sitekeeper/internal/mirror"
	"github.com/oakmont/sitekeeper/internal/model"
)

// CreateBackup validates the requested component set, creates a job record,
// produces the archive, and uploads it. It returns the job id on success.
// A second concurrent call fails with ErrConcurrency before any side effect.
func (e *Engine) CreateBackup(ctx context.Context, name string, components []string, scheduled bool) (int64, error) {
	if !e.coord.TryAcquireBackup() {
		return 0, fmt.Errorf("%w: backup already running", ErrConcurrency)
	}
	defer e.coord.ReleaseBackup()

	requested := model.FilterComponents(components)
	if len(requested) == 0 {
		return 0, fmt.Errorf("%w: no valid components in %v", ErrValidation, components)
	}
	if e.remote == nil {
		return 0, ErrNotConfigured
	}

	job, err := e.jobs.Create(name, requested, scheduled)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := e.produceBackup(ctx, job); err != nil {
		return job.ID, err
	}
	return job.ID, nil
}

// produceBackup runs one backup job to completion. It holds no lock: the
// public entry point acquires the backup slot, and the restore orchestrator
// calls this directly for its safety backup. The job row must already exist.
func (e *Engine) produceBackup(ctx context.Context, job *model.BackupJob) (err error) {
	e.setStatus(Status{State: StateBackingUp, JobID: job.ID, InProgress: true})
	defer func() {
		if err != nil {
			e.logger.Error("backup failed", "job", job.ID, "error", err)
			if storeErr := e.jobs.MarkFailed(job.ID, err.Error()); storeErr != nil {
				e.logger.Error("mark job failed", "job", job.ID, "error", storeErr)
			}
			e.activity.Record("backup", "failed", "job", job.ID, map[string]string{"error": err.Error()})
			e.setStatus(Status{State: StateError, JobID: job.ID, Error: err.Error()})
		}
	}()

	workDir := filepath.Join(e.cfg.Roots.Work, fmt.Sprintf("job-%d", job.ID))
	archivePath := filepath.Join(e.cfg.Roots.Work, fmt.Sprintf("job-%d.tar.gz", job.ID))
	encPath := archivePath + ".enc"
	defer func() {
		// Local temporaries go away on success and failure alike.
		if cleanErr := mirror.RemoveTree(workDir); cleanErr != nil {
			e.logger.Warn("cleanup working directory", "job", job.ID, "error", cleanErr)
		}
		for _, p := range []string{archivePath, encPath} {
			if cleanErr := os.Remove(p); cleanErr != nil && !os.IsNotExist(cleanErr) {
				e.logger.Warn("cleanup archive file", "job", job.ID, "error", cleanErr)
			}
		}
	}()

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	if err := e.jobs.MarkRunning(job.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	for _, c := range job.Components {
		if err := e.produceArtifact(c, workDir); err != nil {
			return err
		}
	}

	if err := archive.Create(workDir, archivePath); err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if _, err := os.Stat(archivePath); err != nil {
		return fmt.Errorf("%w: archive missing after create: %v", ErrArchive, err)
	}

	uploadPath := archivePath
	if e.cfg.Passphrase != "" {
		salt, err := archive.GenerateSalt()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrArchive, err)
		}
		if err := archive.EncryptFile(archivePath, encPath, e.cfg.Passphrase, salt); err != nil {
			return fmt.Errorf("%w: %v", ErrArchive, err)
		}
		uploadPath = encPath
	}

	objectName, size, err := e.remote.Upload(ctx, uploadPath, job.ID)
	if err != nil {
		// Uploads are not retried; a failed upload fails the job.
		return fmt.Errorf("upload archive: %w", err)
	}

	if err := e.jobs.MarkCompleted(job.ID, objectName, size); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	e.logger.Info("backup completed", "job", job.ID, "object", objectName, "bytes", size)
	e.activity.Record("backup", "completed", "job", job.ID, map[string]string{
		"object_name": objectName,
		"components":  model.JoinComponents(job.Components),
	})
	e.setStatus(Status{State: StateIdle, JobID: job.ID})
	return nil
}

// produceArtifact writes one component's artifact into the working directory.
func (e *Engine) produceArtifact(c model.Component, workDir string) error {
	if c == model.ComponentDatabase {
		if err := dump.WriteFile(e.siteDB, filepath.Join(workDir, "database.sql")); err != nil {
			return fmt.Errorf("dump database: %w", err)
		}
		return nil
	}

	src := e.cfg.Roots.For(c)
	var excludes []string
	if c == model.ComponentContent {
		excludes = e.cfg.Roots.contentExcludes()
	}
	copied, err := mirror.CopyTree(src, filepath.Join(workDir, string(c)), excludes)
	if err != nil {
		return fmt.Errorf("copy %s: %w", c, err)
	}
	if len(copied) == 0 {
		e.logger.Warn("component produced no files", "component", c, "source", src)
	}
	return nil
}

// safetyComponents is what the restore orchestrator snapshots before
// mutating anything.
var safetyComponents = []model.Component{
	model.ComponentDatabase,
	model.ComponentContent,
	model.ComponentMedia,
}

// safetyBackup takes a best-effort backup of the current site prior to a
// restore. It bypasses the backup slot on purpose: the restore slot is
// already held and the public entry point would wrongly report concurrency.
func (e *Engine) safetyBackup(ctx context.Context, name string) error {
	job, err := e.jobs.Create(name, safetyComponents, false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return e.produceBackup(ctx, job)
}
