package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/idguard/internal/database"
	"github.com/BradenHooton/idguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// SessionMigrationRepository moves anonymous resources to a user account
type SessionMigrationRepository struct {
	db     *database.DB
	logger *slog.Logger
}

// NewSessionMigrationRepository creates a new SessionMigrationRepository
func NewSessionMigrationRepository(db *database.DB, logger *slog.Logger) *SessionMigrationRepository {
	return &SessionMigrationRepository{db: db, logger: logger}
}

// MigrateSession reassigns every voice note owned by sessionID to userID,
// charges them to the user's credits_used and marks the session terminal,
// all in one transaction. A session that was
// already migrated yields 0 and changes nothing.
func (r *SessionMigrationRepository) MigrateSession(ctx context.Context, sessionID, userID string, now time.Time) (int, error) {
	migrated := 0

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		// Ensure a row exists so that an unseen id is also finalized.
		_, err := tx.Exec(ctx, `
			INSERT INTO anonymous_sessions (session_id, usage_count, created_at, last_used_at)
			VALUES ($1, 0, $2, $2)
			ON CONFLICT (session_id) DO NOTHING
		`, sessionID, now)
		if err != nil {
			return fmt.Errorf("failed to ensure session row: %w", err)
		}

		var migratedAt *time.Time
		err = tx.QueryRow(ctx,
			`SELECT migrated_at FROM anonymous_sessions WHERE session_id = $1 FOR UPDATE`,
			sessionID,
		).Scan(&migratedAt)
		if err != nil {
			return fmt.Errorf("failed to lock session row: %w", database.MapPostgresError(err))
		}
		if migratedAt != nil {
			return nil
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to verify user: %w", database.MapPostgresError(err))
		}
		if !exists {
			return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}

		rows, err := tx.Query(ctx, `
			UPDATE voice_notes
			SET owner_id = $2, session_id = NULL
			WHERE session_id = $1
			RETURNING id::text
		`, sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to reassign voice notes: %w", err)
		}
		noteIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to reassign voice notes: %w", err)
		}

		if len(noteIDs) > 0 {
			_, err = tx.Exec(ctx,
				`UPDATE users SET credits_used = credits_used + $2 WHERE id = $1`,
				userID, len(noteIDs))
			if err != nil {
				return fmt.Errorf("failed to charge migrated notes: %w", database.MapPostgresError(err))
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE anonymous_sessions
			SET migrated_at = $2, migrated_to = $3
			WHERE session_id = $1
		`, sessionID, now, userID)
		if err != nil {
			return fmt.Errorf("failed to finalize session: %w", err)
		}

		r.writeUsageLog(ctx, tx, userID, models.MigrationMetadata{
			SessionID:  sessionID,
			NotesCount: len(noteIDs),
			NoteIDs:    noteIDs,
			Timestamp:  now,
		})

		migrated = len(noteIDs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return migrated, nil
}

// writeUsageLog records the migration inside a savepoint; a failure here
// rolls back only the savepoint and does not abort the migration.
func (r *SessionMigrationRepository) writeUsageLog(ctx context.Context, tx pgx.Tx, userID string, meta models.MigrationMetadata) {
	payload, err := json.Marshal(meta)
	if err != nil {
		r.logger.Warn("could not encode migration usage log", slog.Any("error", err))
		return
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		r.logger.Warn("could not open savepoint for usage log", slog.Any("error", err))
		return
	}

	_, err = sp.Exec(ctx, `
		INSERT INTO usage_logs (user_id, action, metadata, created_at)
		VALUES ($1, $2, $3, $4)
	`, userID, models.UsageActionMigrateAnonymous, payload, meta.Timestamp)
	if err != nil {
		_ = sp.Rollback(ctx)
		r.logger.Warn("could not create usage log entry", slog.Any("error", err))
		return
	}

	if err := sp.Commit(ctx); err != nil {
		r.logger.Warn("could not release usage log savepoint", slog.Any("error", err))
	}
}
