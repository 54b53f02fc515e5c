package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/idguard/internal/database"
	"github.com/BradenHooton/idguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, success, attempted_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		attempt.Email,
		attempt.IPAddress,
		attempt.Success,
		attempt.AttemptedAt,
	).Scan(&attempt.ID)

	return database.MapPostgresError(err)
}

// PruneOldest deletes every attempt for an email except the newest keep rows
func (r *LoginAttemptRepository) PruneOldest(ctx context.Context, email string, keep int) (int64, error) {
	query := `
		DELETE FROM login_attempts
		WHERE id IN (
			SELECT id FROM login_attempts
			WHERE email = $1
			ORDER BY attempted_at DESC, id DESC
			OFFSET $2
		)
	`

	tag, err := r.db.Pool.Exec(ctx, query, email, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetFailedAttemptsSince returns failed attempts for an email at or after since, newest first
func (r *LoginAttemptRepository) GetFailedAttemptsSince(ctx context.Context, email string, since time.Time) ([]models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, success, attempted_at
		FROM login_attempts
		WHERE email = $1 AND success = false AND attempted_at >= $2
		ORDER BY attempted_at DESC, id DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, email, since)
	if err != nil {
		return nil, err
	}
	return scanLoginAttempts(rows)
}

// DeleteFailedAttemptsSince removes failed attempts for an email at or after since
func (r *LoginAttemptRepository) DeleteFailedAttemptsSince(ctx context.Context, email string, since time.Time) (int64, error) {
	query := `
		DELETE FROM login_attempts
		WHERE email = $1 AND success = false AND attempted_at >= $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, email, since)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetRecentAttempts returns the newest attempts for an email, capped at limit
func (r *LoginAttemptRepository) GetRecentAttempts(ctx context.Context, email string, limit int) ([]models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, success, attempted_at
		FROM login_attempts
		WHERE email = $1
		ORDER BY attempted_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, err
	}
	return scanLoginAttempts(rows)
}

// DeleteAttemptsBefore removes attempts of any email older than before
func (r *LoginAttemptRepository) DeleteAttemptsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanLoginAttempts(rows pgx.Rows) ([]models.LoginAttempt, error) {
	defer rows.Close()

	attempts := make([]models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(&a.ID, &a.Email, &a.IPAddress, &a.Success, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		a.AttemptedAt = a.AttemptedAt.UTC()
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating login attempt rows: %w", err)
	}
	return attempts, nil
}
