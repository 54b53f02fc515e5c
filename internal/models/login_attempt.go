package models

import (
	"math"
	"time"
)

// LoginAttempt is a single recorded authentication attempt. Rows are only
// ever appended and pruned, never updated.
type LoginAttempt struct {
	ID          int64     `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	Success     bool      `db:"success" json:"success"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}

// AccountLockStatus is derived from the attempt log on every call and never stored.
type AccountLockStatus struct {
	IsLocked          bool       `json:"is_locked"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	RemainingAttempts int        `json:"remaining_attempts"`
}

// RetryAfterSeconds returns the whole seconds until the lock lifts, rounded up.
func (s AccountLockStatus) RetryAfterSeconds(now time.Time) int {
	if !s.IsLocked || s.LockedUntil == nil {
		return 0
	}
	d := s.LockedUntil.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
