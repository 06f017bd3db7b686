package model

import (
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Component is an independently backed-up and restored unit of the site.
type Component string

const (
	ComponentDatabase   Component = "database"
	ComponentContent    Component = "content"
	ComponentMedia      Component = "media"
	ComponentExtensions Component = "extensions"
	ComponentThemes     Component = "themes"
)

// AllComponents is the fixed whitelist of backupable components.
var AllComponents = []Component{
	ComponentDatabase,
	ComponentContent,
	ComponentMedia,
	ComponentExtensions,
	ComponentThemes,
}

// FilterComponents intersects the requested names with the component whitelist,
// preserving whitelist order and dropping duplicates and unknown names.
func FilterComponents(requested []string) []Component {
	want := make(map[Component]bool, len(requested))
	for _, r := range requested {
		want[Component(strings.ToLower(strings.TrimSpace(r)))] = true
	}
	var out []Component
	for _, c := range AllComponents {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}

// JoinComponents serializes a component set for storage.
func JoinComponents(components []Component) string {
	parts := make([]string, len(components))
	for i, c := range components {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// SplitComponents parses a stored component set.
func SplitComponents(s string) []Component {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]Component, 0, len(parts))
	for _, p := range parts {
		out = append(out, Component(p))
	}
	return out
}

// BackupJob is one backup attempt and its persisted metadata.
type BackupJob struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Components   []Component `json:"components"`
	Status       JobStatus   `json:"status"`
	ObjectName   string      `json:"object_name,omitempty"`
	SizeBytes    int64       `json:"size_bytes"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Scheduled    bool        `json:"scheduled"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
