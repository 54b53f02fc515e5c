package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/idguard/internal/models"
	pkgauth "github.com/BradenHooton/idguard/pkg/auth"
	pkglogger "github.com/BradenHooton/idguard/pkg/logger"
)

// UserRepository defines the account lookups the login flow needs
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
}

// LoginGuard is the lockout policy consulted on every login
type LoginGuard interface {
	RecordAttempt(ctx context.Context, email, ipAddress string, success bool)
	GetLockStatus(ctx context.Context, email string) models.AccountLockStatus
	ClearRecentFailures(ctx context.Context, email string)
}

// SessionMigrator hands an anonymous session over to an account
type SessionMigrator interface {
	Migrate(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error)
}

// TokenIssuer issues access tokens
type TokenIssuer interface {
	GenerateAccessToken(userID, email string) (string, error)
}

// TokenRevoker puts an access token on the revocation list
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error
}

// FailureDelay pads failed logins
type FailureDelay interface {
	WaitFrom(start time.Time, success bool)
}

// MigrationWarning is surfaced when a login succeeds but the anonymous
// session could not be transferred
const MigrationWarning = "Signed in, but your previous anonymous activity could not be transferred."

// LoginError carries the lock status alongside a rejected login
type LoginError struct {
	Err    error
	Status models.AccountLockStatus
}

func (e *LoginError) Error() string {
	return e.Err.Error()
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// LoginInput is a login request after transport decoding
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	SessionID string
}

// RegisterInput is a registration request after transport decoding
type RegisterInput struct {
	Email     string
	Password  string
	IPAddress string
	SessionID string
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	CreditsUsed int    `json:"credits_used"`
	CreatedAt   string `json:"created_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken string                  `json:"access_token"`
	User        *UserResponse           `json:"user"`
	Migration   *models.MigrationResult `json:"migration,omitempty"`
	Warning     string                  `json:"warning,omitempty"`
}

// AuthService runs the login and registration flows around the login guard
// and the session migration
type AuthService struct {
	users    UserRepository
	guard    LoginGuard
	migrator SessionMigrator
	tokens   TokenIssuer
	revoker  TokenRevoker
	delay    FailureDelay
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserRepository, guard LoginGuard, migrator SessionMigrator, tokens TokenIssuer, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		guard:    guard,
		migrator: migrator,
		tokens:   tokens,
		logger:   logger,
		audit:    pkglogger.NewAuditLogger(logger),
	}
}

// SetFailureDelay sets the padding applied to failed logins
func (s *AuthService) SetFailureDelay(delay FailureDelay) {
	s.delay = delay
}

// SetTokenRevoker enables Logout
func (s *AuthService) SetTokenRevoker(revoker TokenRevoker) {
	s.revoker = revoker
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck spends a bcrypt comparison for unknown emails
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = pkgauth.HashPassword("not-a-real-password")
	})
	_ = pkgauth.ComparePassword(dummyHash, password)
}

// Login authenticates a user. Rejections are *LoginError values wrapping
// models.ErrAccountLocked or models.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResponse, error) {
	start := time.Now()
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, &LoginError{Err: models.ErrInvalidCredentials}
	}

	if status := s.guard.GetLockStatus(ctx, email); status.IsLocked {
		s.guard.RecordAttempt(ctx, email, in.IPAddress, false)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     pkglogger.EventLogin,
			Email:         email,
			IPAddress:     in.IPAddress,
			FailureReason: "account_locked",
		})
		return nil, &LoginError{Err: models.ErrAccountLocked, Status: status}
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, models.ErrNotFound):
		burnPasswordCheck(in.Password)
		return nil, s.rejectCredentials(ctx, email, in.IPAddress, start)
	case err != nil:
		s.logger.Error("failed to get user by email",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, in.Password); err != nil {
		return nil, s.rejectCredentials(ctx, email, in.IPAddress, start)
	}

	s.guard.RecordAttempt(ctx, email, in.IPAddress, true)
	s.guard.ClearRecentFailures(ctx, email)

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.migrateSoftly(ctx, in.SessionID, user.ID, resp)

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: pkglogger.EventLogin,
		UserID:    user.ID,
		IPAddress: in.IPAddress,
		Success:   true,
	})
	return resp, nil
}

// rejectCredentials is only reached while the account is unlocked, so a
// locked status after recording this failure means this failure tripped it.
func (s *AuthService) rejectCredentials(ctx context.Context, email, ipAddress string, start time.Time) error {
	s.guard.RecordAttempt(ctx, email, ipAddress, false)
	status := s.guard.GetLockStatus(ctx, email)
	if status.IsLocked && status.LockedUntil != nil {
		s.audit.LogLockout(email, ipAddress, *status.LockedUntil)
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		Email:         email,
		IPAddress:     ipAddress,
		FailureReason: "invalid_credentials",
	})

	if s.delay != nil {
		s.delay.WaitFrom(start, false)
	}
	return &LoginError{Err: models.ErrInvalidCredentials, Status: status}
}

// Register creates an account and signs it in. An invalid password wraps
// models.ErrBadRequest; a taken email returns models.ErrConflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", models.ErrBadRequest)
	}

	hash, err := pkgauth.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, pkgauth.ErrInvalidPassword) {
			return nil, fmt.Errorf("%w: %w", models.ErrBadRequest, err)
		}
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.Create(ctx, email, hash)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.migrateSoftly(ctx, in.SessionID, user.ID, resp)

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: pkglogger.EventRegister,
		UserID:    user.ID,
		IPAddress: in.IPAddress,
		Success:   true,
	})
	return resp, nil
}

func (s *AuthService) issue(user *models.User) (*AuthResponse, error) {
	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthResponse{
		AccessToken: accessToken,
		User:        userToResponse(user),
	}, nil
}

func userToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		CreditsUsed: user.CreditsUsed,
		CreatedAt:   user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Me returns the signed-in account. A token whose account no longer exists
// yields models.ErrNotFound.
func (s *AuthService) Me(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user by id", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return userToResponse(user), nil
}

// Logout revokes the presented access token until it expires
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return models.ErrUnauthorized
	}
	if s.revoker == nil {
		s.logger.Error("logout requested without a token revoker", slog.String("user_id", claims.UserID))
		return models.ErrInternalServer
	}

	if err := s.revoker.RevokeToken(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time, "logout"); err != nil {
		s.logger.Error("failed to revoke token",
			slog.String("jti", claims.ID),
			slog.String("user_id", claims.UserID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: pkglogger.EventLogout,
		UserID:    claims.UserID,
		Success:   true,
	})
	return nil
}

// migrateSoftly transfers the anonymous session if one came with the
// request. Failure only sets a warning on the response.
func (s *AuthService) migrateSoftly(ctx context.Context, sessionID, userID string, resp *AuthResponse) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || s.migrator == nil {
		return
	}

	result, err := s.migrator.Migrate(ctx, sessionID, userID)
	if err != nil {
		s.logger.Warn("anonymous session migration failed after sign-in",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		resp.Warning = MigrationWarning
		return
	}
	resp.Migration = result
}
