package models

import (
	"encoding/json"
	"time"
)

// Usage log actions
const (
	UsageActionMigrateAnonymous = "migrate_anonymous"
)

// UsageLog is an append-only record of account-level usage events.
type UsageLog struct {
	ID        int64           `db:"id"`
	UserID    string          `db:"user_id"`
	Action    string          `db:"action"`
	Metadata  json.RawMessage `db:"metadata"`
	CreatedAt time.Time       `db:"created_at"`
}

// MigrationMetadata is stored in UsageLog.Metadata for migrate_anonymous events.
type MigrationMetadata struct {
	SessionID  string    `json:"session_id"`
	NotesCount int       `json:"notes_count"`
	NoteIDs    []string  `json:"note_ids"`
	Timestamp  time.Time `json:"timestamp"`
}
