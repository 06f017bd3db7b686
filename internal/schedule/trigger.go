package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TriggerFunc is invoked when a trigger comes due. It runs synchronously in
// the trigger loop; recurring behavior is re-arming from inside the func.
type TriggerFunc func(ctx context.Context)

type trigger struct {
	due time.Time
	fn  TriggerFunc
}

// Triggers is an in-process cron-like registry of named one-shot triggers.
// Arming an existing name replaces it; a fired trigger is removed before its
// func runs.
type Triggers struct {
	mu      sync.RWMutex
	entries map[string]*trigger
	logger  *slog.Logger

	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewTriggers(logger *slog.Logger) *Triggers {
	return &Triggers{
		entries:  make(map[string]*trigger),
		logger:   logger,
		interval: 30 * time.Second,
	}
}

// Arm schedules fn to run at due, replacing any existing trigger of that name.
func (t *Triggers) Arm(name string, due time.Time, fn TriggerFunc) {
	t.mu.Lock()
	t.entries[name] = &trigger{due: due, fn: fn}
	t.mu.Unlock()
	t.logger.Info("trigger armed", "name", name, "due", due)
}

// Disarm removes a trigger by name. Unknown names are a no-op.
func (t *Triggers) Disarm(name string) {
	t.mu.Lock()
	_, existed := t.entries[name]
	delete(t.entries, name)
	t.mu.Unlock()
	if existed {
		t.logger.Info("trigger disarmed", "name", name)
	}
}

// Armed reports whether a trigger of that name exists.
func (t *Triggers) Armed(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[name]
	return ok
}

// Due returns the due time of a named trigger.
func (t *Triggers) Due(name string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return tr.due, true
}

// Start begins the trigger loop.
func (t *Triggers) Start(ctx context.Context) {
	t.mu.Lock()
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.fireDue(ctx, time.Now())
			}
		}
	}()
}

// Stop gracefully stops the trigger loop.
func (t *Triggers) Stop() {
	t.mu.RLock()
	cancel := t.cancel
	done := t.done
	t.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// fireDue runs every due trigger synchronously, one at a time.
func (t *Triggers) fireDue(ctx context.Context, now time.Time) {
	t.mu.Lock()
	var due []*trigger
	for name, tr := range t.entries {
		if !tr.due.After(now) {
			due = append(due, tr)
			delete(t.entries, name)
		}
	}
	t.mu.Unlock()

	for _, tr := range due {
		tr.fn(ctx)
	}
}
