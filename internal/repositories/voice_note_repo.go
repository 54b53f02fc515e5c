package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/idguard/internal/database"
	"github.com/BradenHooton/idguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// VoiceNoteRepository reads voice notes still held by anonymous sessions
type VoiceNoteRepository struct {
	db *database.DB
}

// NewVoiceNoteRepository creates a new VoiceNoteRepository
func NewVoiceNoteRepository(db *database.DB) *VoiceNoteRepository {
	return &VoiceNoteRepository{db: db}
}

// ListBySession returns one page of the session's notes, newest first, and
// the total number of notes the session owns
func (r *VoiceNoteRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]models.VoiceNote, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM voice_notes WHERE session_id = $1`, sessionID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count voice notes: %w", database.MapPostgresError(err))
	}
	if total == 0 || offset >= total {
		return []models.VoiceNote{}, total, nil
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text AS id, owner_id::text AS owner_id, session_id, title, created_at
		FROM voice_notes
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list voice notes: %w", database.MapPostgresError(err))
	}
	notes, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.VoiceNote])
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan voice notes: %w", err)
	}
	return notes, total, nil
}
