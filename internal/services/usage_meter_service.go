package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/idguard/internal/models"
)

// AnonymousSessionRepository defines the session usage store
type AnonymousSessionRepository interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.AnonymousSession, error)
	ReserveUsage(ctx context.Context, sessionID string, limit int, now time.Time) (*models.AnonymousSession, error)
}

// DefaultAnonymousUsageLimit is the free quota for a session without an account
const DefaultAnonymousUsageLimit = 5

// UsageMeterService enforces the free quota for anonymous sessions.
//
// Unlike the login guard this fails closed: if the counter cannot be
// read or advanced the action is denied.
type UsageMeterService struct {
	repo   AnonymousSessionRepository
	limit  int
	logger *slog.Logger
	now    Clock
}

// NewUsageMeterService creates a new UsageMeterService
func NewUsageMeterService(repo AnonymousSessionRepository, limit int, logger *slog.Logger) *UsageMeterService {
	if limit <= 0 {
		limit = DefaultAnonymousUsageLimit
	}
	return &UsageMeterService{
		repo:   repo,
		limit:  limit,
		logger: logger,
		now:    SystemClock,
	}
}

// SetClock replaces the time source
func (s *UsageMeterService) SetClock(clock Clock) {
	s.now = clock
}

// Limit returns the per-session quota
func (s *UsageMeterService) Limit() int {
	return s.limit
}

// CheckAndReserve consumes one unit of the session's quota. On denial the
// returned error is models.ErrQuotaExceeded, models.ErrSessionMigrated or
// models.ErrUsageUnavailable; the usage view is returned whenever it is known.
func (s *UsageMeterService) CheckAndReserve(ctx context.Context, sessionID string) (*models.UsageInfo, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, models.ErrMissingSessionID
	}

	session, err := s.repo.ReserveUsage(ctx, sessionID, s.limit, s.now().UTC())
	switch {
	case err == nil:
		return models.NewUsageInfo(sessionID, session, s.limit), nil
	case errors.Is(err, models.ErrQuotaExceeded), errors.Is(err, models.ErrSessionMigrated):
		s.logger.Info("anonymous usage denied",
			slog.String("session_id", sessionID),
			slog.String("reason", err.Error()))
		return models.NewUsageInfo(sessionID, session, s.limit), err
	default:
		s.logger.Error("failed to reserve anonymous usage",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrUsageUnavailable, err)
	}
}

// GetUsage reports the session's usage without creating it. Unknown ids get
// the zero-usage view.
func (s *UsageMeterService) GetUsage(ctx context.Context, sessionID string) (*models.UsageInfo, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, models.ErrMissingSessionID
	}

	session, err := s.repo.GetBySessionID(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		return models.NewUsageInfo(sessionID, nil, s.limit), nil
	}
	if err != nil {
		s.logger.Error("failed to get anonymous usage",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrUsageUnavailable, err)
	}
	return models.NewUsageInfo(sessionID, session, s.limit), nil
}
