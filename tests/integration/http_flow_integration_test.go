//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/idguard/internal/handlers"
	"github.com/BradenHooton/idguard/internal/models"
	"github.com/BradenHooton/idguard/internal/services"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
)

func TestHTTP_AnonymousQuotaThenSignup(t *testing.T) {
	ctx := resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	resp, err := ts.Request(http.MethodPost, "/anonymous/session", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session handlers.SessionResponse
	require.NoError(t, ParseJSONResponse(resp, &session))
	require.NotEmpty(t, session.SessionID)

	_, err = SeedVoiceNotes(ctx, testDB.Pool, session.SessionID, 2)
	require.NoError(t, err)

	resp, err = ts.Request(http.MethodGet, "/anonymous/voice-notes/"+session.SessionID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notes models.VoiceNotePage
	require.NoError(t, ParseJSONResponse(resp, &notes))
	assert.Len(t, notes.Data, 2)

	headers := map[string]string{pkghttp.SessionIDHeader: session.SessionID}
	for i := 1; i <= 5; i++ {
		resp, err := ts.Request(http.MethodPost, "/anonymous/reserve", nil, headers)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, "reservation %d", i)

		var reserved handlers.ReserveResponse
		require.NoError(t, ParseJSONResponse(resp, &reserved))
		require.NotNil(t, reserved.Usage)
		assert.Equal(t, i, reserved.Usage.UsageCount)
		assert.Equal(t, 5-i, reserved.Usage.Remaining)
	}

	resp, err = ts.Request(http.MethodPost, "/anonymous/reserve", nil, headers)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var denied pkghttp.ErrorResponse
	require.NoError(t, ParseJSONResponse(resp, &denied))
	assert.Equal(t, "usage_limit_exceeded", denied.Error)

	email, password := TestUser("signup")
	resp, err = ts.Request(http.MethodPost, "/auth/register", map[string]string{
		"email":      email,
		"password":   password,
		"session_id": session.SessionID,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var registered services.AuthResponse
	require.NoError(t, ParseJSONResponse(resp, &registered))
	require.NotEmpty(t, registered.AccessToken)
	require.NotNil(t, registered.Migration)
	assert.Equal(t, 2, registered.Migration.Migrated)
	assert.Empty(t, registered.Warning)

	// Migrated notes are charged to the account and leave the session
	resp, err = ts.RequestWithAuth(http.MethodGet, "/auth/me", registered.AccessToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me services.UserResponse
	require.NoError(t, ParseJSONResponse(resp, &me))
	assert.Equal(t, registered.User.ID, me.ID)
	assert.Equal(t, 2, me.CreditsUsed)

	resp, err = ts.Request(http.MethodGet, "/anonymous/voice-notes/"+session.SessionID, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ParseJSONResponse(resp, &notes))
	assert.Empty(t, notes.Data)
	assert.Zero(t, notes.Pagination.Total)

	// The retired session grants nothing further
	resp, err = ts.Request(http.MethodPost, "/anonymous/reserve", nil, headers)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NoError(t, ParseJSONResponse(resp, &denied))
	assert.Equal(t, "session_migrated", denied.Error)

	// Signed-in callers bypass the quota
	resp, err = ts.Request(http.MethodPost, "/anonymous/reserve", nil, map[string]string{
		"Authorization":         "Bearer " + registered.AccessToken,
		pkghttp.SessionIDHeader: session.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Explicit migration afterwards is a no-op
	resp, err = ts.RequestWithAuth(http.MethodPost, "/anonymous/migrate", registered.AccessToken,
		map[string]string{"session_id": session.SessionID})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var migration struct {
		Migrated int `json:"migrated"`
	}
	require.NoError(t, ParseJSONResponse(resp, &migration))
	assert.Equal(t, 0, migration.Migrated)
}

func TestHTTP_LoginLockout(t *testing.T) {
	ctx := resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("lockout")
	_, err := SeedUser(ctx, testDB.DB, email, password)
	require.NoError(t, err)

	wrong := map[string]string{"email": email, "password": "not-the-password"}
	for i := 1; i <= 4; i++ {
		resp, err := ts.Request(http.MethodPost, "/auth/login", wrong, nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var body handlers.InvalidCredentialsResponse
		require.NoError(t, ParseJSONResponse(resp, &body))
		assert.Equal(t, 5-i, body.RemainingAttempts)
	}

	resp, err := ts.Request(http.MethodPost, "/auth/login", wrong, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	var locked pkghttp.LockoutResponse
	require.NoError(t, ParseJSONResponse(resp, &locked))
	assert.Equal(t, "account_locked", locked.Error)
	assert.Positive(t, locked.RetryAfter)

	// Correct password is refused while locked
	resp, err = ts.Request(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_LogoutRevokesToken(t *testing.T) {
	ctx := resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("logout")
	resp, err := ts.Request(http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var registered services.AuthResponse
	require.NoError(t, ParseJSONResponse(resp, &registered))
	token := registered.AccessToken

	resp, err = ts.RequestWithAuth(http.MethodGet, "/auth/me", token, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.RequestWithAuth(http.MethodPost, "/auth/logout", token, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.RequestWithAuth(http.MethodGet, "/auth/me", token, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// A second logout with the same token is refused by the middleware
	resp, err = ts.RequestWithAuth(http.MethodPost, "/auth/logout", token, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	claims, err := ts.TokenManager.ValidateToken(token)
	require.NoError(t, err)
	repos := InitializeRepositories(testDB.DB)
	revoked, err := repos.Revocations.IsTokenRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Entries go away once the token could no longer be used anyway
	purged, err := repos.Revocations.DeleteExpiredTokens(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, purged)
	purged, err = repos.Revocations.DeleteExpiredTokens(ctx, claims.ExpiresAt.Time.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestHTTP_VoiceNotePagination(t *testing.T) {
	ctx := resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	sessionID := TestSessionID()
	_, err := SeedVoiceNotes(ctx, testDB.Pool, sessionID, 12)
	require.NoError(t, err)

	tests := []struct {
		query     string
		wantItems int
	}{
		{"?page=1&limit=5", 5},
		{"?page=3&limit=5", 2},
		{"?page=4&limit=5", 0},
	}
	for _, tt := range tests {
		resp, err := ts.Request(http.MethodGet, "/anonymous/voice-notes/"+sessionID+tt.query, nil, nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, tt.query)

		var page models.VoiceNotePage
		require.NoError(t, ParseJSONResponse(resp, &page))
		assert.Len(t, page.Data, tt.wantItems, tt.query)
		assert.Equal(t, 12, page.Pagination.Total, tt.query)
		assert.Equal(t, 3, page.Pagination.TotalPages, tt.query)
	}

	// Default page size and newest-first ordering
	resp, err := ts.Request(http.MethodGet, "/anonymous/voice-notes/"+sessionID, nil, nil)
	require.NoError(t, err)
	var first models.VoiceNotePage
	require.NoError(t, ParseJSONResponse(resp, &first))
	require.Len(t, first.Data, 10)
	assert.Equal(t, 10, first.Pagination.Limit)
	for i := 1; i < len(first.Data); i++ {
		assert.False(t, first.Data[i].CreatedAt.After(first.Data[i-1].CreatedAt))
	}

	resp, err = ts.Request(http.MethodGet, "/anonymous/voice-notes/"+TestSessionID(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var unseen models.VoiceNotePage
	require.NoError(t, ParseJSONResponse(resp, &unseen))
	assert.Empty(t, unseen.Data)
	assert.Zero(t, unseen.Pagination.TotalPages)
}

func TestHTTP_BrowserHeaders(t *testing.T) {
	resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	resp, err := ts.Request(http.MethodOptions, "/anonymous/reserve", nil, map[string]string{
		"Origin":                         "http://app.test",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "authorization, x-session-id",
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://app.test", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers")), "x-session-id")

	resp, err = ts.Request(http.MethodPost, "/anonymous/session", nil, map[string]string{"Origin": "http://elsewhere.test"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestHTTP_MalformedSessionID(t *testing.T) {
	resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	resp, err := ts.Request(http.MethodPost, "/anonymous/reserve", nil, map[string]string{pkghttp.SessionIDHeader: "has space"})
	require.NoError(t, err)
	var body pkghttp.ErrorResponse
	require.NoError(t, ParseJSONResponse(resp, &body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_session_id", body.Error)

	resp, err = ts.Request(http.MethodGet, fmt.Sprintf("/anonymous/usage/%s", strings.Repeat("x", pkghttp.MaxSessionIDLength+1)), nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
