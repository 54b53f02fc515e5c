package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/idguard/internal/auth"
	"github.com/BradenHooton/idguard/internal/models"
	"github.com/BradenHooton/idguard/internal/services"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   models.TokenTypeAccess,
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc    func(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error)
	RegisterFunc func(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error)
	MeFunc       func(ctx context.Context, userID string) (*services.UserResponse, error)
	LogoutFunc   func(ctx context.Context, claims *models.TokenClaims) error
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.AuthResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*services.AuthResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Me(ctx context.Context, userID string) (*services.UserResponse, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx, userID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, claims)
	}
	return nil
}

// MockVoiceNoteLister implements VoiceNoteListerInterface for testing
type MockVoiceNoteLister struct {
	ListForSessionFunc func(ctx context.Context, sessionID string, page, limit int) (*models.VoiceNotePage, error)
}

func (m *MockVoiceNoteLister) ListForSession(ctx context.Context, sessionID string, page, limit int) (*models.VoiceNotePage, error) {
	if m.ListForSessionFunc != nil {
		return m.ListForSessionFunc(ctx, sessionID, page, limit)
	}
	return &models.VoiceNotePage{Data: []models.VoiceNote{}, Pagination: models.NewPagination(1, 10, 0)}, nil
}

// MockAttemptLister implements AttemptListerInterface for testing
type MockAttemptLister struct {
	ListRecentFunc func(ctx context.Context, email string, limit int) []models.LoginAttempt
}

func (m *MockAttemptLister) ListRecent(ctx context.Context, email string, limit int) []models.LoginAttempt {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, email, limit)
	}
	return []models.LoginAttempt{}
}

// MockUsageMeter implements UsageMeterInterface for testing
type MockUsageMeter struct {
	GetUsageFunc func(ctx context.Context, sessionID string) (*models.UsageInfo, error)
}

func (m *MockUsageMeter) GetUsage(ctx context.Context, sessionID string) (*models.UsageInfo, error) {
	if m.GetUsageFunc != nil {
		return m.GetUsageFunc(ctx, sessionID)
	}
	return models.NewUsageInfo(sessionID, nil, 5), nil
}

// MockSessionMigrator implements SessionMigratorInterface for testing
type MockSessionMigrator struct {
	MigrateFunc func(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error)
}

func (m *MockSessionMigrator) Migrate(ctx context.Context, sessionID, userID string) (*models.MigrationResult, error) {
	if m.MigrateFunc != nil {
		return m.MigrateFunc(ctx, sessionID, userID)
	}
	return &models.MigrationResult{}, nil
}

// WithChiRouteContext sets chi URL parameters that the router would
// normally extract from the path.
//
// Example usage:
//
//	req := httptest.NewRequest("GET", "/anonymous/usage/s1", nil)
//	req = WithChiRouteContext(req, map[string]string{
//	    "sessionId": "s1",
//	})
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
