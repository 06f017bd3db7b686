// Package engine implements the backup job creator and the restore
// orchestrator: producing point-in-time archives of a site's mutable state,
// shipping them to object storage, and swapping them back into place.
package engine

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/oakmont/sitekeeper/internal/activity"
	"github.com/oakmont/sitekeeper/internal/model"
	"github.com/oakmont/sitekeeper/internal/remote"
	"github.com/oakmont/sitekeeper/internal/store"
)

// Roots are the framework-provided filesystem roots, one per directory
// component, plus the engine's own scratch area.
type Roots struct {
	Content    string
	Media      string
	Extensions string
	Themes     string
	Work       string
}

// For returns the live root for a directory component.
func (r Roots) For(c model.Component) string {
	switch c {
	case model.ComponentContent:
		return r.Content
	case model.ComponentMedia:
		return r.Media
	case model.ComponentExtensions:
		return r.Extensions
	case model.ComponentThemes:
		return r.Themes
	}
	return ""
}

// contentExcludes lists directory names skipped when mirroring the content
// root, so nested media/extension/theme/cache trees are not duplicated.
func (r Roots) contentExcludes() []string {
	return []string{
		filepath.Base(r.Media),
		filepath.Base(r.Extensions),
		filepath.Base(r.Themes),
		"cache",
	}
}

// ExtensionRegistry is the framework's registry of active extensions. The
// restore orchestrator clears it around an extensions swap so the framework
// never loads a half-swapped directory mid-request.
type ExtensionRegistry interface {
	ActiveExtensions() ([]string, error)
	SetActiveExtensions(names []string) error
}

// NopExtensionRegistry is used when no framework registry is wired in.
type NopExtensionRegistry struct{}

func (NopExtensionRegistry) ActiveExtensions() ([]string, error) { return nil, nil }
func (NopExtensionRegistry) SetActiveExtensions([]string) error  { return nil }

// State represents the engine state reported to status listeners.
type State string

const (
	StateIdle      State = "idle"
	StateBackingUp State = "backing_up"
	StateRestoring State = "restoring"
	StateError     State = "error"
)

// Status is a point-in-time engine status snapshot.
type Status struct {
	State      State  `json:"state"`
	JobID      int64  `json:"job_id,omitempty"`
	Error      string `json:"error,omitempty"`
	InProgress bool   `json:"in_progress"`
}

// StatusCallback is called whenever the engine state changes.
type StatusCallback func(Status)

// Config holds static engine configuration.
type Config struct {
	Roots Roots
	// Passphrase enables at-rest archive encryption when non-empty.
	Passphrase string
}

// Engine is the backup job creator and restore orchestrator.
type Engine struct {
	cfg      Config
	coord    *Coordinator
	jobs     *store.JobStore
	remote   remote.ObjectClient
	siteDB   *sql.DB
	registry ExtensionRegistry
	activity *activity.Logger
	logger   *slog.Logger
	callback StatusCallback

	mu             sync.RWMutex
	status         Status
	cacheListeners []func()
}

// New creates an Engine. remoteClient may be nil, in which case backups and
// restores fail with ErrNotConfigured. registry may be nil.
func New(cfg Config, coord *Coordinator, jobs *store.JobStore, remoteClient remote.ObjectClient,
	siteDB *sql.DB, registry ExtensionRegistry, act *activity.Logger,
	callback StatusCallback, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = NopExtensionRegistry{}
	}
	return &Engine{
		cfg:      cfg,
		coord:    coord,
		jobs:     jobs,
		remote:   remoteClient,
		siteDB:   siteDB,
		registry: registry,
		activity: act,
		logger:   logger,
		callback: callback,
		status:   Status{State: StateIdle},
	}
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
	if e.callback != nil {
		e.callback(s)
	}
}

// RegisterCacheListener adds a listener for the post-restore cache
// invalidation signal. Listeners must not block; panics are recovered.
func (e *Engine) RegisterCacheListener(fn func()) {
	e.mu.Lock()
	e.cacheListeners = append(e.cacheListeners, fn)
	e.mu.Unlock()
}

func (e *Engine) invalidateCaches() {
	e.mu.RLock()
	listeners := make([]func(), len(e.cacheListeners))
	copy(listeners, e.cacheListeners)
	e.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("cache listener panicked", "panic", r)
				}
			}()
			fn()
		}()
	}
}
