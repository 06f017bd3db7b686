// Package activity records structured operational events. The logger never
// returns an error to callers: a failed append is reported via slog and
// otherwise dropped, so engine code can log activity unconditionally.
package activity

import (
	"log/slog"

	"github.com/oakmont/sitekeeper/internal/store"
)

type Logger struct {
	store  *store.ActivityStore
	logger *slog.Logger
}

func NewLogger(as *store.ActivityStore, logger *slog.Logger) *Logger {
	return &Logger{store: as, logger: logger}
}

// Record appends an activity entry. Append failures are logged, never returned.
func (l *Logger) Record(domain, event, entityType string, entityID int64, metadata map[string]string) {
	if l == nil || l.store == nil {
		return
	}
	if err := l.store.Append(domain, event, entityType, entityID, metadata); err != nil {
		l.logger.Error("record activity", "domain", domain, "event", event, "error", err)
	}
}
