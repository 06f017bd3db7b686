package model

import "time"

// ActivityEntry is one row in the append-only activity log.
type ActivityEntry struct {
	ID         int64             `json:"id"`
	Domain     string            `json:"domain"`
	Event      string            `json:"event"`
	EntityType string            `json:"entity_type"`
	EntityID   int64             `json:"entity_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
