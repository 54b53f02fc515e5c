package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/idguard/internal/models"
	pkglogger "github.com/BradenHooton/idguard/pkg/logger"
)

const defaultRecentAttemptsLimit = 10

// LoginAttemptRepository defines the attempt log operations the guard needs
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	PruneOldest(ctx context.Context, email string, keep int) (int64, error)
	GetFailedAttemptsSince(ctx context.Context, email string, since time.Time) ([]models.LoginAttempt, error)
	DeleteFailedAttemptsSince(ctx context.Context, email string, since time.Time) (int64, error)
	GetRecentAttempts(ctx context.Context, email string, limit int) ([]models.LoginAttempt, error)
}

// LoginGuardConfig holds the lockout thresholds
type LoginGuardConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	AttemptWindow     time.Duration
	RetentionPerEmail int
}

// DefaultLoginGuardConfig returns the standard thresholds: 5 failures within
// 15 minutes lock the account for 15 minutes; 50 attempts are kept per email.
func DefaultLoginGuardConfig() LoginGuardConfig {
	return LoginGuardConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		AttemptWindow:     15 * time.Minute,
		RetentionPerEmail: 50,
	}
}

// LoginGuardService derives lockout decisions from the login attempt log.
//
// Every storage failure is logged and absorbed: the guard sits on the login
// path and must fail open rather than lock everyone out during an outage.
type LoginGuardService struct {
	repo   LoginAttemptRepository
	config LoginGuardConfig
	logger *slog.Logger
	now    Clock
}

// NewLoginGuardService creates a new LoginGuardService
func NewLoginGuardService(repo LoginAttemptRepository, config LoginGuardConfig, logger *slog.Logger) *LoginGuardService {
	return &LoginGuardService{
		repo:   repo,
		config: config,
		logger: logger,
		now:    SystemClock,
	}
}

// SetClock replaces the time source
func (s *LoginGuardService) SetClock(clock Clock) {
	s.now = clock
}

// RecordAttempt appends an attempt and prunes the email's history down to
// the retention size. It never fails from the caller's point of view.
func (s *LoginGuardService) RecordAttempt(ctx context.Context, email, ipAddress string, success bool) {
	if err := s.recordAttempt(ctx, normalizeEmail(email), ipAddress, success); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Bool("success", success),
			slog.Any("error", err))
	}
}

func (s *LoginGuardService) recordAttempt(ctx context.Context, email, ipAddress string, success bool) error {
	attempt := &models.LoginAttempt{
		Email:       email,
		IPAddress:   ipAddress,
		Success:     success,
		AttemptedAt: s.now().UTC(),
	}

	if err := s.repo.RecordAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}

	pruned, err := s.repo.PruneOldest(ctx, email, s.config.RetentionPerEmail)
	if err != nil {
		return fmt.Errorf("prune attempts: %w", err)
	}
	if pruned > 0 {
		s.logger.Debug("pruned login attempts",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Int64("rows_deleted", pruned))
	}
	return nil
}

// GetLockStatus computes the lock state for an email from failures inside
// the attempt window. On storage errors it reports the account unlocked
// with the full allowance.
func (s *LoginGuardService) GetLockStatus(ctx context.Context, email string) models.AccountLockStatus {
	email = normalizeEmail(email)
	now := s.now().UTC()

	failures, err := s.repo.GetFailedAttemptsSince(ctx, email, windowStart(now, s.config.AttemptWindow))
	if err != nil {
		s.logger.Error("failed to check account lock status",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return models.AccountLockStatus{
			IsLocked:          false,
			RemainingAttempts: s.config.MaxFailedAttempts,
		}
	}

	return s.evaluate(failures, now)
}

// evaluate expects failures ordered newest first. It has no side effects;
// the lock transition is audited by the login flow.
func (s *LoginGuardService) evaluate(failures []models.LoginAttempt, now time.Time) models.AccountLockStatus {
	if len(failures) < s.config.MaxFailedAttempts {
		return models.AccountLockStatus{
			IsLocked:          false,
			RemainingAttempts: s.config.MaxFailedAttempts - len(failures),
		}
	}

	lockedUntil := failures[0].AttemptedAt.Add(s.config.LockoutDuration)
	if !now.Before(lockedUntil) {
		// Threshold reached but the lock has lapsed; remaining stays 0 until
		// the window rolls past the old failures.
		return models.AccountLockStatus{IsLocked: false, RemainingAttempts: 0}
	}

	return models.AccountLockStatus{
		IsLocked:          true,
		LockedUntil:       &lockedUntil,
		RemainingAttempts: 0,
	}
}

// ClearRecentFailures removes the failures inside the current window so a
// successful login resets the counter immediately.
func (s *LoginGuardService) ClearRecentFailures(ctx context.Context, email string) {
	email = normalizeEmail(email)
	since := windowStart(s.now().UTC(), s.config.AttemptWindow)

	cleared, err := s.repo.DeleteFailedAttemptsSince(ctx, email, since)
	if err != nil {
		s.logger.Error("failed to clear login attempts",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return
	}
	if cleared > 0 {
		s.logger.Info("cleared recent login failures",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Int64("rows_deleted", cleared))
	}
}

// ListRecent returns up to limit attempts, newest first. A non-positive
// limit means 10. Storage errors yield an empty slice.
func (s *LoginGuardService) ListRecent(ctx context.Context, email string, limit int) []models.LoginAttempt {
	if limit <= 0 {
		limit = defaultRecentAttemptsLimit
	}
	limit = min(limit, s.config.RetentionPerEmail)

	attempts, err := s.repo.GetRecentAttempts(ctx, normalizeEmail(email), limit)
	if err != nil {
		s.logger.Error("failed to get recent login attempts",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return []models.LoginAttempt{}
	}
	return attempts
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
