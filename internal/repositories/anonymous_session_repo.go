package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/idguard/internal/database"
	"github.com/BradenHooton/idguard/internal/models"
)

// AnonymousSessionRepository stores per-session usage counters
type AnonymousSessionRepository struct {
	db *database.DB
}

// NewAnonymousSessionRepository creates a new AnonymousSessionRepository
func NewAnonymousSessionRepository(db *database.DB) *AnonymousSessionRepository {
	return &AnonymousSessionRepository{db: db}
}

const anonymousSessionColumns = `session_id, usage_count, created_at, last_used_at, migrated_at, migrated_to::text`

func scanAnonymousSession(row rowScanner) (*models.AnonymousSession, error) {
	var s models.AnonymousSession
	if err := row.Scan(&s.SessionID, &s.UsageCount, &s.CreatedAt, &s.LastUsedAt, &s.MigratedAt, &s.MigratedTo); err != nil {
		return nil, database.MapPostgresError(err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.LastUsedAt = s.LastUsedAt.UTC()
	return &s, nil
}

// GetBySessionID returns models.ErrNotFound for unknown ids. It never creates a row.
func (r *AnonymousSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.AnonymousSession, error) {
	query := `SELECT ` + anonymousSessionColumns + ` FROM anonymous_sessions WHERE session_id = $1`
	return scanAnonymousSession(r.db.Pool.QueryRow(ctx, query, sessionID))
}

// ReserveUsage lazily creates the session and increments its counter in a
// single conditional update, so concurrent callers can never push the count
// past limit. When nothing was reserved it returns the current row together
// with models.ErrQuotaExceeded or models.ErrSessionMigrated.
func (r *AnonymousSessionRepository) ReserveUsage(ctx context.Context, sessionID string, limit int, now time.Time) (*models.AnonymousSession, error) {
	insert := `
		INSERT INTO anonymous_sessions (session_id, usage_count, created_at, last_used_at)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (session_id) DO NOTHING
	`
	if _, err := r.db.Pool.Exec(ctx, insert, sessionID, now); err != nil {
		return nil, fmt.Errorf("failed to create anonymous session: %w", err)
	}

	update := `
		UPDATE anonymous_sessions
		SET usage_count = usage_count + 1, last_used_at = $3
		WHERE session_id = $1 AND usage_count < $2 AND migrated_at IS NULL
		RETURNING ` + anonymousSessionColumns

	session, err := scanAnonymousSession(r.db.Pool.QueryRow(ctx, update, sessionID, limit, now))
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to reserve anonymous usage: %w", err)
	}

	// Nothing reserved: find out why.
	current, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read anonymous session: %w", err)
	}
	if current.IsMigrated() {
		return current, models.ErrSessionMigrated
	}
	return current, models.ErrQuotaExceeded
}
