package engine

import "errors"

// Error kinds for the backup and restore paths. Callers classify failures
// with errors.Is; the concrete cause is carried in the wrapped chain.
var (
	ErrConcurrency   = errors.New("another operation is in flight")
	ErrValidation    = errors.New("invalid request")
	ErrNotFound      = errors.New("backup job not found")
	ErrPersistence   = errors.New("job store write failed")
	ErrArchive       = errors.New("archive failed")
	ErrDownload      = errors.New("download failed")
	ErrExtract       = errors.New("extract failed")
	ErrRestore       = errors.New("restore failed")
	ErrNotConfigured = errors.New("remote storage not configured")
)
