package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/idguard/internal/auth"
	"github.com/BradenHooton/idguard/internal/config"
	"github.com/BradenHooton/idguard/internal/database"
	"github.com/BradenHooton/idguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/idguard/internal/middleware"
	"github.com/BradenHooton/idguard/internal/routes"
	"github.com/BradenHooton/idguard/internal/services"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
)

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Config *config.Config

	// Dependency references for inspection in tests
	TokenManager *auth.TokenManager
	LoginGuard   *services.LoginGuardService
	UsageMeter   *services.UsageMeterService
}

// NewTestServer initializes a complete HTTP server backed by the real database
func NewTestServer(db *database.DB) *TestServer {
	logger := quietLogger()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{"http://app.test"},
		},
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry: 15 * time.Minute,
		},
		Guard: config.GuardConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
			AttemptWindow:     15 * time.Minute,
			RetentionPerEmail: 50,
		},
		Anonymous: config.AnonymousConfig{
			UsageLimit: 5,
		},
		RateLimit: config.RateLimitConfig{
			LoginRequestsPerMinute: 1000,
		},
	}

	repos := InitializeRepositories(db)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	loginGuard := services.NewLoginGuardService(repos.Attempts, services.LoginGuardConfig{
		MaxFailedAttempts: cfg.Guard.MaxFailedAttempts,
		LockoutDuration:   cfg.Guard.LockoutDuration,
		AttemptWindow:     cfg.Guard.AttemptWindow,
		RetentionPerEmail: cfg.Guard.RetentionPerEmail,
	}, logger)
	usageMeter := services.NewUsageMeterService(repos.Sessions, cfg.Anonymous.UsageLimit, logger)
	migrationService := services.NewSessionMigrationService(repos.Migrations, logger)
	voiceNoteService := services.NewVoiceNoteService(repos.VoiceNotes, logger)

	// No failure delay: tests would only get slower
	authService := services.NewAuthService(repos.Users, loginGuard, migrationService, tokenManager, logger)
	authService.SetTokenRevoker(repos.Revocations)

	ipConfig := &pkghttp.IPConfig{}

	authHandler := handlers.NewAuthHandler(authService, loginGuard, ipConfig)
	anonymousHandler := handlers.NewAnonymousHandler(usageMeter, migrationService)
	voiceNoteHandler := handlers.NewVoiceNoteHandler(voiceNoteService)

	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(chiMiddleware.Recoverer)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:      authHandler,
		AnonymousHandler: anonymousHandler,
		VoiceNoteHandler: voiceNoteHandler,
		TokenManager:     tokenManager,
		Revocation:       repos.Revocations,
		UsageMeter:       usageMeter,
		RateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.LoginRequestsPerMinute,
			IPConfig:          ipConfig,
		},
		IPConfig: ipConfig,
		Logger:   logger,
	})

	return &TestServer{
		Server:       httptest.NewServer(router),
		DB:           db,
		Config:       cfg,
		TokenManager: tokenManager,
		LoginGuard:   loginGuard,
		UsageMeter:   usageMeter,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// URL returns the base URL for the test server
func (ts *TestServer) URL() string {
	return ts.Server.URL
}

// Request makes an HTTP request with optional body and headers
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.URL()+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes a request with a bearer token
func (ts *TestServer) RequestWithAuth(method, path, token string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// ParseJSONResponse decodes the response body into target and closes it
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
