package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPurger deletes login attempts recorded before a cutoff
type AttemptPurger interface {
	DeleteAttemptsBefore(ctx context.Context, before time.Time) (int64, error)
}

// TokenPurger deletes revocation entries whose tokens have expired
type TokenPurger interface {
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// CleanupManager periodically removes aged login attempts. Per-email
// retention keeps active emails bounded; this catches emails that stop
// logging in. It also drops revocations for tokens that have expired.
type CleanupManager struct {
	attempts AttemptPurger
	tokens   TokenPurger
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attempts AttemptPurger,
	logger *slog.Logger,
	interval time.Duration,
	maxAge time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attempts: attempts,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// SetTokenPurger enables purging of expired token revocations
func (cm *CleanupManager) SetTokenPurger(tokens TokenPurger) {
	cm.tokens = tokens
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes attempts older than maxAge and expired revocations
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now().UTC()
	cutoff := now.Add(-cm.maxAge)
	rowsDeleted, err := cm.attempts.DeleteAttemptsBefore(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to purge old login attempts", slog.Any("error", err))
	} else if rowsDeleted > 0 {
		cm.logger.Info("login attempt purge completed",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff))
	}

	if cm.tokens == nil {
		return
	}
	tokensDeleted, err := cm.tokens.DeleteExpiredTokens(cleanupCtx, now)
	if err != nil {
		cm.logger.Error("failed to purge expired token revocations", slog.Any("error", err))
		return
	}
	if tokensDeleted > 0 {
		cm.logger.Info("token revocation purge completed", slog.Int64("rows_deleted", tokensDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
