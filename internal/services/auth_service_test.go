package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/idguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	pkgauth "github.com/BradenHooton/idguard/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct horse battery"

func testUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPasswordWithCost(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	return NewTestUserWithPassword(testUserID, "user@example.com", hash)
}

func newTestAuthService(users UserRepository, guard LoginGuard, migrator SessionMigrator) (*AuthService, *MockTimingDelay) {
	svc := NewAuthService(users, guard, migrator, &MockTokenManager{}, slog.Default())
	delay := &MockTimingDelay{}
	svc.SetFailureDelay(delay)
	return svc, delay
}

func TestAuthService_Login_Success(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			assert.Equal(t, "user@example.com", email)
			return user, nil
		},
	}
	guard := &MockLoginGuard{}
	svc, delay := newTestAuthService(users, guard, &MockSessionMigrator{})

	resp, err := svc.Login(context.Background(), LoginInput{
		Email:     " User@Example.com",
		Password:  testPassword,
		IPAddress: "203.0.113.1",
	})

	require.NoError(t, err)
	assert.Equal(t, "access-token-"+testUserID, resp.AccessToken)
	assert.Equal(t, testUserID, resp.User.ID)
	assert.Nil(t, resp.Migration)
	assert.Empty(t, resp.Warning)
	assert.Equal(t, []recordedAttempt{{Email: "user@example.com", IPAddress: "203.0.113.1", Success: true}}, guard.Recorded)
	assert.Equal(t, []string{"user@example.com"}, guard.Cleared)
	assert.Zero(t, delay.Calls)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	guard := &MockLoginGuard{}
	guard.GetLockStatusFunc = func(ctx context.Context, email string) models.AccountLockStatus {
		failures := 0
		for _, a := range guard.Recorded {
			if !a.Success {
				failures++
			}
		}
		return models.AccountLockStatus{RemainingAttempts: 5 - failures}
	}
	svc, delay := newTestAuthService(users, guard, &MockSessionMigrator{})

	_, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "wrong password"})

	var loginErr *LoginError
	require.True(t, errors.As(err, &loginErr))
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 4, loginErr.Status.RemainingAttempts)
	assert.Len(t, guard.Recorded, 1)
	assert.False(t, guard.Recorded[0].Success)
	assert.Empty(t, guard.Cleared)
	assert.Equal(t, 1, delay.Calls)
}

func TestAuthService_Login_UnknownEmailCountsAsFailure(t *testing.T) {
	guard := &MockLoginGuard{}
	svc, delay := newTestAuthService(&MockUserRepository{}, guard, &MockSessionMigrator{})

	_, err := svc.Login(context.Background(), LoginInput{Email: "ghost@example.com", Password: testPassword})

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	require.Len(t, guard.Recorded, 1)
	assert.Equal(t, "ghost@example.com", guard.Recorded[0].Email)
	assert.False(t, guard.Recorded[0].Success)
	assert.Equal(t, 1, delay.Calls)
}

func TestAuthService_Login_Locked(t *testing.T) {
	lockedUntil := time.Now().Add(10 * time.Minute)
	lookedUp := false
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			lookedUp = true
			return nil, models.ErrNotFound
		},
	}
	guard := &MockLoginGuard{
		GetLockStatusFunc: func(ctx context.Context, email string) models.AccountLockStatus {
			return models.AccountLockStatus{IsLocked: true, LockedUntil: &lockedUntil}
		},
	}
	svc, _ := newTestAuthService(users, guard, &MockSessionMigrator{})

	_, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: testPassword})

	var loginErr *LoginError
	require.True(t, errors.As(err, &loginErr))
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.True(t, loginErr.Status.IsLocked)
	assert.Equal(t, &lockedUntil, loginErr.Status.LockedUntil)
	assert.False(t, lookedUp, "locked accounts must not reach credential checks")
	require.Len(t, guard.Recorded, 1)
	assert.False(t, guard.Recorded[0].Success)
}

func TestAuthService_Login_StorageErrorIsNotAFailure(t *testing.T) {
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	guard := &MockLoginGuard{}
	svc, _ := newTestAuthService(users, guard, &MockSessionMigrator{})

	_, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: testPassword})

	assert.ErrorIs(t, err, models.ErrInternalServer)
	assert.Empty(t, guard.Recorded)
}

func TestAuthService_Login_MigratesSession(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	migrator := &MockSessionMigrator{
		MigrateFunc: func(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error) {
			assert.Equal(t, "s1", sessionID)
			assert.Equal(t, testUserID, userID)
			return &models.MigrationResult{Migrated: 2}, nil
		},
	}
	svc, _ := newTestAuthService(users, &MockLoginGuard{}, migrator)

	resp, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: testPassword, SessionID: "s1"})

	require.NoError(t, err)
	require.NotNil(t, resp.Migration)
	assert.Equal(t, 2, resp.Migration.Migrated)
	assert.Empty(t, resp.Warning)
}

func TestAuthService_Login_MigrationFailureIsSoft(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	migrator := &MockSessionMigrator{
		MigrateFunc: func(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error) {
			return nil, models.ErrMigrationFailed
		},
	}
	svc, _ := newTestAuthService(users, &MockLoginGuard{}, migrator)

	resp, err := svc.Login(context.Background(), LoginInput{Email: "user@example.com", Password: testPassword, SessionID: "s1"})

	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Nil(t, resp.Migration)
	assert.Equal(t, MigrationWarning, resp.Warning)
}

func TestAuthService_Register(t *testing.T) {
	var storedHash string
	users := &MockUserRepository{
		CreateFunc: func(ctx context.Context, email, passwordHash string) (*models.User, error) {
			storedHash = passwordHash
			return NewTestUserWithPassword(testUserID, email, passwordHash), nil
		},
	}
	svc, _ := newTestAuthService(users, &MockLoginGuard{}, &MockSessionMigrator{
		MigrateFunc: func(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error) {
			return &models.MigrationResult{Migrated: 1}, nil
		},
	})

	resp, err := svc.Register(context.Background(), RegisterInput{Email: "New@Example.com", Password: testPassword, SessionID: "s1"})

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", resp.User.Email)
	assert.Equal(t, 1, resp.Migration.Migrated)
	assert.NoError(t, pkgauth.ComparePassword(storedHash, testPassword))
}

func TestAuthService_Register_Errors(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		createFn func(ctx context.Context, email, passwordHash string) (*models.User, error)
		wantErr  error
	}{
		{"blank email", " ", testPassword, nil, models.ErrBadRequest},
		{"short password", "a@b.com", "short", nil, models.ErrBadRequest},
		{"duplicate email", "a@b.com", testPassword, func(ctx context.Context, email, passwordHash string) (*models.User, error) {
			return nil, models.ErrConflict
		}, models.ErrConflict},
		{"storage failure", "a@b.com", testPassword, func(ctx context.Context, email, passwordHash string) (*models.User, error) {
			return nil, errors.New("boom")
		}, models.ErrInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(&MockUserRepository{CreateFunc: tt.createFn}, &MockLoginGuard{}, &MockSessionMigrator{})

			resp, err := svc.Register(context.Background(), RegisterInput{Email: tt.email, Password: tt.password})

			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// countEvents counts JSON log lines carrying the given audit event type
func countEvents(t *testing.T, buf *bytes.Buffer, eventType string) int {
	t.Helper()
	n := 0
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if entry["event_type"] == eventType {
			n++
		}
	}
	return n
}

func TestAuthService_Login_LockoutAuditedOnce(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	guard := NewLoginGuardService(&memoryAttemptStore{}, DefaultLoginGuardConfig(), logger)
	clock := newFixedClock(guardEpoch)
	guard.SetClock(clock.Now)

	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	svc := NewAuthService(users, guard, &MockSessionMigrator{}, &MockTokenManager{}, logger)
	svc.SetFailureDelay(&MockTimingDelay{})

	for i := 0; i < 4; i++ {
		_, err := svc.Login(ctx, LoginInput{Email: "user@example.com", Password: "wrong password"})
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}
	assert.Zero(t, countEvents(t, &buf, "account_locked"))

	_, err := svc.Login(ctx, LoginInput{Email: "user@example.com", Password: "wrong password", IPAddress: "203.0.113.9"})
	var loginErr *LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.True(t, loginErr.Status.IsLocked)
	assert.Equal(t, 1, countEvents(t, &buf, "account_locked"))

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, LoginInput{Email: "user@example.com", Password: testPassword})
		require.ErrorIs(t, err, models.ErrAccountLocked)
		guard.GetLockStatus(ctx, "user@example.com")
	}
	assert.Equal(t, 1, countEvents(t, &buf, "account_locked"))
}

func TestAuthService_Me(t *testing.T) {
	user := NewTestUserWithPassword(testUserID, "user@example.com", "hash")
	user.CreditsUsed = 4

	tests := []struct {
		name    string
		getFn   func(ctx context.Context, id string) (*models.User, error)
		wantErr error
	}{
		{"found", func(ctx context.Context, id string) (*models.User, error) { return user, nil }, nil},
		{"deleted account", nil, models.ErrNotFound},
		{"malformed id", func(ctx context.Context, id string) (*models.User, error) { return nil, models.ErrBadRequest }, models.ErrNotFound},
		{"storage failure", func(ctx context.Context, id string) (*models.User, error) { return nil, errors.New("boom") }, models.ErrInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAuthService(&MockUserRepository{GetByIDFunc: tt.getFn}, &MockLoginGuard{}, nil)

			resp, err := svc.Me(context.Background(), testUserID)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testUserID, resp.ID)
			assert.Equal(t, 4, resp.CreditsUsed)
			assert.Equal(t, "2025-01-01T00:00:00Z", resp.CreatedAt)
		})
	}
}

func TestAuthService_Logout(t *testing.T) {
	expires := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	claims := &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		UserID: testUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	t.Run("revokes until expiry", func(t *testing.T) {
		var gotJTI, gotUser, gotReason string
		var gotExpiry time.Time
		svc, _ := newTestAuthService(&MockUserRepository{}, &MockLoginGuard{}, nil)
		svc.SetTokenRevoker(&MockTokenRevoker{
			RevokeTokenFunc: func(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
				gotJTI, gotUser, gotExpiry, gotReason = jti, userID, expiresAt, reason
				return nil
			},
		})

		require.NoError(t, svc.Logout(context.Background(), claims))
		assert.Equal(t, "jti-1", gotJTI)
		assert.Equal(t, testUserID, gotUser)
		assert.True(t, expires.Equal(gotExpiry))
		assert.Equal(t, "logout", gotReason)
	})

	t.Run("storage failure", func(t *testing.T) {
		svc, _ := newTestAuthService(&MockUserRepository{}, &MockLoginGuard{}, nil)
		svc.SetTokenRevoker(&MockTokenRevoker{
			RevokeTokenFunc: func(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
				return errors.New("boom")
			},
		})

		assert.ErrorIs(t, svc.Logout(context.Background(), claims), models.ErrInternalServer)
	})

	t.Run("token without jti", func(t *testing.T) {
		svc, _ := newTestAuthService(&MockUserRepository{}, &MockLoginGuard{}, nil)
		svc.SetTokenRevoker(&MockTokenRevoker{})

		err := svc.Logout(context.Background(), &models.TokenClaims{UserID: testUserID})
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})
}
