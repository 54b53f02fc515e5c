package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/idguard/internal/auth"
	"github.com/BradenHooton/idguard/internal/models"
	"github.com/BradenHooton/idguard/internal/services"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error)
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error)
	Me(ctx context.Context, userID string) (*services.UserResponse, error)
	Logout(ctx context.Context, claims *models.TokenClaims) error
}

// AttemptListerInterface lists recorded login attempts for an email
type AttemptListerInterface interface {
	ListRecent(ctx context.Context, email string, limit int) []models.LoginAttempt
}

// LockoutWarning is attached to a failed login when one more failure locks the account
const LockoutWarning = "One more failed attempt will temporarily lock this account."

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	attempts AttemptListerInterface
	ipConfig *pkghttp.IPConfig
	now      func() time.Time
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, attempts AttemptListerInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		attempts: attempts,
		ipConfig: ipConfig,
		now:      time.Now,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,sessionid"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,sessionid"`
}

// InvalidCredentialsResponse is returned for a rejected password
type InvalidCredentialsResponse struct {
	pkghttp.ErrorResponse
	RemainingAttempts int    `json:"remaining_attempts"`
	Warning           string `json:"warning,omitempty"`
}

// RecentAttemptsResponse lists the caller's recent login attempts
type RecentAttemptsResponse struct {
	Attempts []models.LoginAttempt `json:"attempts"`
}

// sessionIDFor prefers the body field and falls back to the session header
func sessionIDFor(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(pkghttp.SessionIDHeader))
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} InvalidCredentialsResponse
// @Failure 429 {object} pkghttp.LockoutResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID := sessionIDFor(r, req.SessionID)
	if sessionID != "" {
		if err := ValidateSessionID(sessionID); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
	}

	authResp, err := h.service.Login(r.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		SessionID: sessionID,
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var loginErr *services.LoginError
	if !errors.As(err, &loginErr) {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	status := loginErr.Status
	if status.IsLocked && status.LockedUntil != nil {
		pkghttp.WriteAccountLocked(w, *status.LockedUntil, status.RetryAfterSeconds(h.now()))
		return
	}

	if errors.Is(err, models.ErrAccountLocked) {
		pkghttp.WriteTooManyRequests(w, "Account temporarily locked. Try again later.")
		return
	}

	resp := InvalidCredentialsResponse{
		ErrorResponse: pkghttp.ErrorResponse{
			Error:   "invalid_credentials",
			Message: "Invalid email or password",
		},
		RemainingAttempts: status.RemainingAttempts,
	}
	if status.RemainingAttempts <= 1 {
		resp.Warning = LockoutWarning
	}
	pkghttp.WriteJSON(w, http.StatusUnauthorized, resp)
}

// Register handles user registration
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} services.AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID := sessionIDFor(r, req.SessionID)
	if sessionID != "" {
		if err := ValidateSessionID(sessionID); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
	}

	authResp, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		SessionID: sessionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, authResp)
}

// RecentAttempts lists the authenticated user's recent login attempts
// @Summary Recent login attempts
// @Security BearerAuth
// @Param limit query int false "Maximum attempts to return"
// @Produce json
// @Success 200 {object} RecentAttemptsResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/attempts [get]
func (h *AuthHandler) RecentAttempts(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			pkghttp.WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	pkghttp.WriteJSON(w, http.StatusOK, RecentAttemptsResponse{
		Attempts: h.attempts.ListRecent(r.Context(), claims.Email, limit),
	})
}

// Me returns the signed-in account and its credit usage
// @Summary Current user
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.UserResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.service.Me(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// Logout revokes the bearer token used for this request
// @Summary User logout
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
