package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/idguard/internal/database"
	"github.com/BradenHooton/idguard/internal/models"
	"github.com/BradenHooton/idguard/internal/repositories"
	"github.com/BradenHooton/idguard/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// Repositories bundles every repository backed by the test database
type Repositories struct {
	Users       *repositories.UserRepository
	Attempts    *repositories.LoginAttemptRepository
	Sessions    *repositories.AnonymousSessionRepository
	Migrations  *repositories.SessionMigrationRepository
	VoiceNotes  *repositories.VoiceNoteRepository
	Revocations *repositories.TokenRevocationRepository
}

// quietLogger drops everything below warnings
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("idguard"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	db := database.NewFromPool(pool, quietLogger())
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"revoked_tokens",
		"usage_logs",
		"voice_notes",
		"anonymous_sessions",
		"login_attempts",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) Repositories {
	return Repositories{
		Users:       repositories.NewUserRepository(db),
		Attempts:    repositories.NewLoginAttemptRepository(db),
		Sessions:    repositories.NewAnonymousSessionRepository(db),
		Migrations:  repositories.NewSessionMigrationRepository(db, quietLogger()),
		VoiceNotes:  repositories.NewVoiceNoteRepository(db),
		Revocations: repositories.NewTokenRevocationRepository(db),
	}
}

// SeedUser inserts a test user with a low-cost bcrypt hash
func SeedUser(ctx context.Context, db *database.DB, email, password string) (*models.User, error) {
	hashedPassword, err := auth.HashPasswordWithCost(password, bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := repositories.NewUserRepository(db).Create(ctx, email, hashedPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// CreditsUsedBy reads a user's credits_used counter
func CreditsUsedBy(ctx context.Context, pool *pgxpool.Pool, userID string) (int, error) {
	var credits int
	err := pool.QueryRow(ctx, `SELECT credits_used FROM users WHERE id = $1`, userID).Scan(&credits)
	return credits, err
}

// SeedVoiceNotes creates n notes owned by an anonymous session and returns their ids
func SeedVoiceNotes(ctx context.Context, pool *pgxpool.Pool, sessionID string, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO voice_notes (session_id, title)
			VALUES ($1, $2)
			RETURNING id::text
		`, sessionID, fmt.Sprintf("note %d", i+1)).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert voice note: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CountNotesOwnedBy returns how many notes belong to a user
func CountNotesOwnedBy(ctx context.Context, pool *pgxpool.Pool, userID string) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM voice_notes WHERE owner_id = $1`, userID).Scan(&n)
	return n, err
}

// NotesForSession lists the notes still owned by an anonymous session
func NotesForSession(ctx context.Context, pool *pgxpool.Pool, sessionID string) ([]models.VoiceNote, error) {
	rows, err := pool.Query(ctx, `
		SELECT id::text AS id, owner_id::text AS owner_id, session_id, title, created_at
		FROM voice_notes
		WHERE session_id = $1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query voice notes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[models.VoiceNote])
}

// UsageLogsFor returns a user's usage log entries, oldest first
func UsageLogsFor(ctx context.Context, pool *pgxpool.Pool, userID string) ([]models.UsageLog, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, user_id::text AS user_id, action, metadata, created_at
		FROM usage_logs
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage logs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[models.UsageLog])
}
