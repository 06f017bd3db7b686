package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oakmont/sitekeeper/internal/model"
)

type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) Append(domain, event, entityType string, entityID int64, metadata map[string]string) error {
	var meta *string
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
		str := string(data)
		meta = &str
	}
	_, err := s.db.Exec(
		`INSERT INTO activity_log (domain, event, entity_type, entity_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		domain, event, entityType, entityID, meta, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *ActivityStore) ListRecent(domain string, limit int) ([]model.ActivityEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, domain, event, entity_type, entity_id, metadata, created_at
		 FROM activity_log WHERE domain = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		domain, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.Domain, &e.Event, &e.EntityType, &e.EntityID, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal activity metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
