package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/idguard/internal/database"
)

// TokenRevocationRepository stores the JTIs of access tokens that were
// signed out before they expired
type TokenRevocationRepository struct {
	db *database.DB
}

// NewTokenRevocationRepository creates a new TokenRevocationRepository
func NewTokenRevocationRepository(db *database.DB) *TokenRevocationRepository {
	return &TokenRevocationRepository{db: db}
}

// RevokeToken adds a token to the revocation list. Revoking the same JTI
// twice is a no-op.
func (r *TokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
	query := `
		INSERT INTO revoked_tokens (jti, user_id, reason, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`
	if _, err := r.db.Pool.Exec(ctx, query, jti, userID, reason, expiresAt); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// IsTokenRevoked reports whether the JTI is on the revocation list
func (r *TokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// DeleteExpiredTokens drops entries whose token would be rejected as
// expired anyway
func (r *TokenRevocationRepository) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
