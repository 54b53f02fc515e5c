package repositories

import (
	"context"

	"github.com/BradenHooton/idguard/internal/database"
	"github.com/BradenHooton/idguard/internal/models"
)

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// UserRepository handles credential lookups and account creation
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreditsUsed, &u.CreatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &u, nil
}

// GetByEmail returns models.ErrNotFound when no account uses the email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id::text, email, password_hash, credits_used, created_at FROM users WHERE email = $1`
	return scanUser(r.db.Pool.QueryRow(ctx, query, email))
}

// GetByID returns models.ErrNotFound when the account does not exist
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id::text, email, password_hash, credits_used, created_at FROM users WHERE id = $1`
	return scanUser(r.db.Pool.QueryRow(ctx, query, id))
}

// Create inserts a user and returns it with its generated id. A duplicate
// email yields models.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id::text, email, password_hash, credits_used, created_at
	`
	return scanUser(r.db.Pool.QueryRow(ctx, query, email, passwordHash))
}
