package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/idguard/internal/models"
	pkglogger "github.com/BradenHooton/idguard/pkg/logger"
	"github.com/google/uuid"
)

// SessionMigrationRepository moves a session's resources to a user atomically
type SessionMigrationRepository interface {
	MigrateSession(ctx context.Context, sessionID, userID string, now time.Time) (int, error)
}

// SessionMigrationService hands an anonymous session over to a user account
type SessionMigrationService struct {
	repo   SessionMigrationRepository
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
	now    Clock
}

// NewSessionMigrationService creates a new SessionMigrationService
func NewSessionMigrationService(repo SessionMigrationRepository, logger *slog.Logger) *SessionMigrationService {
	return &SessionMigrationService{
		repo:   repo,
		logger: logger,
		audit:  pkglogger.NewAuditLogger(logger),
		now:    SystemClock,
	}
}

// SetClock replaces the time source
func (s *SessionMigrationService) SetClock(clock Clock) {
	s.now = clock
}

// Migrate reassigns every resource owned by sessionID to userID and retires
// the session. Repeating the call for the same session returns 0. Any error
// wraps models.ErrMigrationFailed; nothing is partially applied.
func (s *SessionMigrationService) Migrate(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, models.ErrMissingSessionID
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: invalid user id: %w", models.ErrMigrationFailed, models.ErrBadRequest)
	}

	migrated, err := s.repo.MigrateSession(ctx, sessionID, userID, s.now().UTC())
	if err != nil {
		s.logger.Error("session migration failed",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", models.ErrMigrationFailed, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrMigrationFailed, err)
	}

	s.audit.LogMigration(sessionID, userID, migrated)
	return &models.MigrationResult{Migrated: migrated}, nil
}
