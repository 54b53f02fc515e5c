package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/idguard/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	CreateFunc     func(ctx context.Context, email, passwordHash string) (*models.User, error)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, email, passwordHash)
	}
	return nil, models.ErrInternalServer
}

// recordedAttempt is one RecordAttempt call seen by MockLoginGuard
type recordedAttempt struct {
	Email     string
	IPAddress string
	Success   bool
}

// MockLoginGuard implements LoginGuard for testing and records calls
type MockLoginGuard struct {
	GetLockStatusFunc func(ctx context.Context, email string) models.AccountLockStatus

	Recorded []recordedAttempt
	Cleared  []string
}

func (m *MockLoginGuard) RecordAttempt(ctx context.Context, email, ipAddress string, success bool) {
	m.Recorded = append(m.Recorded, recordedAttempt{Email: email, IPAddress: ipAddress, Success: success})
}

func (m *MockLoginGuard) GetLockStatus(ctx context.Context, email string) models.AccountLockStatus {
	if m.GetLockStatusFunc != nil {
		return m.GetLockStatusFunc(ctx, email)
	}
	return models.AccountLockStatus{RemainingAttempts: 5}
}

func (m *MockLoginGuard) ClearRecentFailures(ctx context.Context, email string) {
	m.Cleared = append(m.Cleared, email)
}

// MockSessionMigrator implements SessionMigrator for testing
type MockSessionMigrator struct {
	MigrateFunc func(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error)
}

func (m *MockSessionMigrator) Migrate(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error) {
	if m.MigrateFunc != nil {
		return m.MigrateFunc(ctx, sessionID, userID)
	}
	return &models.MigrationResult{}, nil
}

// MockTokenManager implements TokenIssuer for testing
type MockTokenManager struct {
	GenerateAccessTokenFunc func(userID, email string) (string, error)
}

func (m *MockTokenManager) GenerateAccessToken(userID, email string) (string, error) {
	if m.GenerateAccessTokenFunc != nil {
		return m.GenerateAccessTokenFunc(userID, email)
	}
	return "access-token-" + userID, nil
}

// MockTokenRevoker implements TokenRevoker for testing
type MockTokenRevoker struct {
	RevokeTokenFunc func(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error
}

func (m *MockTokenRevoker) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, expiresAt, reason)
	}
	return nil
}

// MockTimingDelay implements FailureDelay for testing
type MockTimingDelay struct {
	Calls int
}

func (m *MockTimingDelay) WaitFrom(startTime time.Time, succeeded bool) {
	m.Calls++
}

// MockAnonymousSessionRepository implements AnonymousSessionRepository for testing
type MockAnonymousSessionRepository struct {
	GetBySessionIDFunc func(ctx context.Context, sessionID string) (*models.AnonymousSession, error)
	ReserveUsageFunc   func(ctx context.Context, sessionID string, limit int, now time.Time) (*models.AnonymousSession, error)
}

func (m *MockAnonymousSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.AnonymousSession, error) {
	if m.GetBySessionIDFunc != nil {
		return m.GetBySessionIDFunc(ctx, sessionID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAnonymousSessionRepository) ReserveUsage(ctx context.Context, sessionID string, limit int, now time.Time) (*models.AnonymousSession, error) {
	if m.ReserveUsageFunc != nil {
		return m.ReserveUsageFunc(ctx, sessionID, limit, now)
	}
	return nil, models.ErrInternalServer
}

// MockSessionMigrationRepository implements SessionMigrationRepository for testing
type MockSessionMigrationRepository struct {
	MigrateSessionFunc func(ctx context.Context, sessionID, userID string, now time.Time) (int, error)
}

func (m *MockSessionMigrationRepository) MigrateSession(ctx context.Context, sessionID, userID string, now time.Time) (int, error) {
	if m.MigrateSessionFunc != nil {
		return m.MigrateSessionFunc(ctx, sessionID, userID, now)
	}
	return 0, nil
}

// memoryAttemptStore is an in-memory LoginAttemptRepository. Setting err
// makes every call fail.
type memoryAttemptStore struct {
	mu       sync.Mutex
	attempts []models.LoginAttempt
	nextID   int64
	err      error
}

func (s *memoryAttemptStore) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.nextID++
	attempt.ID = s.nextID
	s.attempts = append(s.attempts, *attempt)
	return nil
}

// newestFirst returns the email's attempts ordered like the SQL store
func (s *memoryAttemptStore) newestFirst(email string, keep func(models.LoginAttempt) bool) []models.LoginAttempt {
	var out []models.LoginAttempt
	for _, a := range s.attempts {
		if a.Email == email && keep(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AttemptedAt.Equal(out[j].AttemptedAt) {
			return out[i].AttemptedAt.After(out[j].AttemptedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *memoryAttemptStore) removeWhere(drop func(models.LoginAttempt) bool) int64 {
	kept := s.attempts[:0]
	var removed int64
	for _, a := range s.attempts {
		if drop(a) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept
	return removed
}

func (s *memoryAttemptStore) PruneOldest(ctx context.Context, email string, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	all := s.newestFirst(email, func(models.LoginAttempt) bool { return true })
	if len(all) <= keep {
		return 0, nil
	}
	doomed := make(map[int64]bool)
	for _, a := range all[keep:] {
		doomed[a.ID] = true
	}
	return s.removeWhere(func(a models.LoginAttempt) bool { return doomed[a.ID] }), nil
}

func (s *memoryAttemptStore) GetFailedAttemptsSince(ctx context.Context, email string, since time.Time) ([]models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.newestFirst(email, func(a models.LoginAttempt) bool {
		return !a.Success && !a.AttemptedAt.Before(since)
	}), nil
}

func (s *memoryAttemptStore) DeleteFailedAttemptsSince(ctx context.Context, email string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.removeWhere(func(a models.LoginAttempt) bool {
		return a.Email == email && !a.Success && !a.AttemptedAt.Before(since)
	}), nil
}

func (s *memoryAttemptStore) GetRecentAttempts(ctx context.Context, email string, limit int) ([]models.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	all := s.newestFirst(email, func(models.LoginAttempt) bool { return true })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memoryAttemptStore) count(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.newestFirst(email, func(models.LoginAttempt) bool { return true }))
}

// memorySessionStore is an in-memory AnonymousSessionRepository whose
// ReserveUsage is a single conditional increment, like the SQL store.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.AnonymousSession
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]*models.AnonymousSession)}
}

func (s *memorySessionStore) GetBySessionID(ctx context.Context, sessionID string) (*models.AnonymousSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *memorySessionStore) ReserveUsage(ctx context.Context, sessionID string, limit int, now time.Time) (*models.AnonymousSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &models.AnonymousSession{SessionID: sessionID, CreatedAt: now, LastUsedAt: now}
		s.sessions[sessionID] = session
	}
	cp := *session
	switch {
	case session.IsMigrated():
		return &cp, models.ErrSessionMigrated
	case session.UsageCount >= limit:
		return &cp, models.ErrQuotaExceeded
	}
	session.UsageCount++
	session.LastUsedAt = now
	cp = *session
	return &cp, nil
}

func (s *memorySessionStore) markMigrated(sessionID, userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &models.AnonymousSession{SessionID: sessionID, CreatedAt: at, LastUsedAt: at}
		s.sessions[sessionID] = session
	}
	session.MigratedAt = &at
	session.MigratedTo = &userID
}

// fixedClock is a settable Clock for tests
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// NewTestUserWithPassword creates a user with the given bcrypt hash
func NewTestUserWithPassword(id, email, passwordHash string) *models.User {
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// MockVoiceNoteRepository implements VoiceNoteRepository for testing
type MockVoiceNoteRepository struct {
	ListBySessionFunc func(ctx context.Context, sessionID string, limit, offset int) ([]models.VoiceNote, int, error)
}

func (m *MockVoiceNoteRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]models.VoiceNote, int, error) {
	if m.ListBySessionFunc != nil {
		return m.ListBySessionFunc(ctx, sessionID, limit, offset)
	}
	return nil, 0, nil
}
