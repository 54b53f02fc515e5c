package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/BradenHooton/idguard/internal/auth"
	"github.com/BradenHooton/idguard/internal/middleware"
	"github.com/BradenHooton/idguard/internal/models"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// UsageMeterInterface reports anonymous usage
type UsageMeterInterface interface {
	GetUsage(ctx context.Context, sessionID string) (*models.UsageInfo, error)
}

// SessionMigratorInterface moves an anonymous session to an account
type SessionMigratorInterface interface {
	Migrate(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error)
}

// AnonymousHandler serves the anonymous session endpoints
type AnonymousHandler struct {
	meter    UsageMeterInterface
	migrator SessionMigratorInterface
}

// NewAnonymousHandler creates a new AnonymousHandler
func NewAnonymousHandler(meter UsageMeterInterface, migrator SessionMigratorInterface) *AnonymousHandler {
	return &AnonymousHandler{meter: meter, migrator: migrator}
}

// MigrateRequest represents the request body for a session migration
type MigrateRequest struct {
	SessionID string `json:"session_id" validate:"required,sessionid"`
}

// SessionResponse carries a newly issued session id
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// ReserveResponse is returned once a unit of work is allowed
type ReserveResponse struct {
	Allowed bool              `json:"allowed"`
	Usage   *models.UsageInfo `json:"usage,omitempty"`
}

// CreateSession issues a fresh anonymous session id. The session row is
// created lazily by the first reservation.
// @Summary Issue anonymous session id
// @Produce json
// @Success 201 {object} SessionResponse
// @Router /anonymous/session [post]
func (h *AnonymousHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusCreated, SessionResponse{SessionID: uuid.NewString()})
}

// GetUsage reports a session's usage without reserving anything
// @Summary Anonymous usage
// @Param sessionId path string true "Session id"
// @Produce json
// @Success 200 {object} models.UsageInfo
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /anonymous/usage/{sessionId} [get]
func (h *AnonymousHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "session id is required")
		return
	}

	if err := ValidateSessionID(sessionID); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	info, err := h.meter.GetUsage(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrMissingSessionID) {
			pkghttp.WriteBadRequest(w, "session id is required")
			return
		}
		pkghttp.WriteServiceUnavailable(w, "Usage is temporarily unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, info)
}

// Reserve consumes one unit of anonymous quota. The reservation itself is
// made by middleware.RequireAnonymousQuota; authenticated callers get no usage.
// @Summary Reserve anonymous usage
// @Param X-Session-ID header string false "Session id"
// @Produce json
// @Success 200 {object} ReserveResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} pkghttp.QuotaResponse
// @Router /anonymous/reserve [post]
func (h *AnonymousHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, ReserveResponse{
		Allowed: true,
		Usage:   middleware.UsageFromContext(r.Context()),
	})
}

// Migrate transfers an anonymous session to the authenticated user
// @Summary Migrate anonymous session
// @Security BearerAuth
// @Accept json
// @Param request body MigrateRequest true "Migrate request"
// @Produce json
// @Success 200 {object} models.MigrationResult
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /anonymous/migrate [post]
func (h *AnonymousHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		req.SessionID = strings.TrimSpace(r.Header.Get(pkghttp.SessionIDHeader))
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.migrator.Migrate(r.Context(), req.SessionID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMissingSessionID), errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid migration request")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		default:
			pkghttp.WriteErrorWithDetails(w, http.StatusInternalServerError, "migration_failed",
				"Anonymous session could not be migrated", "no changes were applied")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}
