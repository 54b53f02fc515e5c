package models

import "time"

// AnonymousSession tracks billable usage for a client that has not signed up yet.
// Once MigratedAt is set the row is terminal: it grants no further quota.
type AnonymousSession struct {
	SessionID  string     `db:"session_id"`
	UsageCount int        `db:"usage_count"`
	CreatedAt  time.Time  `db:"created_at"`
	LastUsedAt time.Time  `db:"last_used_at"`
	MigratedAt *time.Time `db:"migrated_at"`
	MigratedTo *string    `db:"migrated_to"`
}

// IsMigrated reports whether the session was handed over to a user account.
func (s *AnonymousSession) IsMigrated() bool {
	return s != nil && s.MigratedAt != nil
}

// UsageInfo is the client-facing view of an anonymous session's quota.
type UsageInfo struct {
	SessionID  string     `json:"session_id"`
	UsageCount int        `json:"usage_count"`
	Limit      int        `json:"limit"`
	Remaining  int        `json:"remaining"`
	Migrated   bool       `json:"migrated"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// NewUsageInfo builds the view for a session. A nil session yields the
// zero-usage view returned for ids that were never seen.
func NewUsageInfo(sessionID string, session *AnonymousSession, limit int) *UsageInfo {
	info := &UsageInfo{
		SessionID: sessionID,
		Limit:     limit,
		Remaining: limit,
	}
	if session == nil {
		return info
	}

	createdAt := session.CreatedAt
	lastUsedAt := session.LastUsedAt
	info.UsageCount = session.UsageCount
	info.CreatedAt = &createdAt
	info.LastUsedAt = &lastUsedAt
	info.Remaining = max(0, limit-session.UsageCount)

	if session.IsMigrated() {
		info.Migrated = true
		info.Remaining = 0
	}
	return info
}

// MigrationResult is returned by a session migration.
type MigrationResult struct {
	Migrated int `json:"migrated"`
}
