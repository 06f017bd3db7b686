package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oakmont/sitekeeper/internal/model"
)

type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Create(name string, components []model.Component, scheduled bool) (*model.BackupJob, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO jobs (name, components, status, scheduled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, model.JoinComponents(components), model.JobStatusPending, scheduled, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	id, _ := result.LastInsertId()
	return &model.BackupJob{
		ID:         id,
		Name:       name,
		Components: components,
		Status:     model.JobStatusPending,
		Scheduled:  scheduled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *JobStore) GetByID(id int64) (*model.BackupJob, error) {
	row := s.db.QueryRow(
		`SELECT id, name, components, status, object_name, size_bytes, error_message, scheduled, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return j, nil
}

func (s *JobStore) List(limit int) ([]model.BackupJob, error) {
	rows, err := s.db.Query(
		`SELECT id, name, components, status, object_name, size_bytes, error_message, scheduled, started_at, completed_at, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.BackupJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// MarkRunning transitions a job to running and records the start time.
func (s *JobStore) MarkRunning(id int64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
		model.JobStatusRunning, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return nil
}

// MarkCompleted transitions a job to completed, recording the uploaded
// object name and archive size.
func (s *JobStore) MarkCompleted(id int64, objectName string, sizeBytes int64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE jobs SET status = ?, object_name = ?, size_bytes = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		model.JobStatusCompleted, objectName, sizeBytes, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

// MarkFailed transitions a job to failed with an error message.
func (s *JobStore) MarkFailed(id int64, errorMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		model.JobStatusFailed, errorMsg, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// ListCompletedBefore returns completed jobs whose completed_at is older than
// the cutoff. The retention sweep deletes each job's remote object before its row.
func (s *JobStore) ListCompletedBefore(before time.Time) ([]model.BackupJob, error) {
	rows, err := s.db.Query(
		`SELECT id, name, components, status, object_name, size_bytes, error_message, scheduled, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE status = ? AND completed_at < ? ORDER BY completed_at`,
		model.JobStatusCompleted, before,
	)
	if err != nil {
		return nil, fmt.Errorf("select expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.BackupJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// Delete removes a single job row.
func (s *JobStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	return nil
}

// FailStaleRunning marks jobs still in pending or running state as failed.
// Called once at startup: a job cannot survive a process restart, so any
// row left mid-flight belongs to a previous process that died.
func (s *JobStore) FailStaleRunning() (int64, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		 WHERE status IN (?, ?)`,
		model.JobStatusFailed, "interrupted by shutdown", now, now,
		model.JobStatusPending, model.JobStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.BackupJob, error) {
	j := &model.BackupJob{}
	var components string
	var objectName, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&j.ID, &j.Name, &components, &j.Status, &objectName, &j.SizeBytes,
		&errMsg, &j.Scheduled, &startedAt, &completedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Components = model.SplitComponents(components)
	j.ObjectName = objectName.String
	j.ErrorMessage = errMsg.String
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}
