package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/idguard/internal/auth"
	"github.com/BradenHooton/idguard/internal/background"
	"github.com/BradenHooton/idguard/internal/config"
	"github.com/BradenHooton/idguard/internal/database"
	"github.com/BradenHooton/idguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/idguard/internal/middleware"
	"github.com/BradenHooton/idguard/internal/repositories"
	"github.com/BradenHooton/idguard/internal/routes"
	"github.com/BradenHooton/idguard/internal/services"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	sessionRepo := repositories.NewAnonymousSessionRepository(db)
	migrationRepo := repositories.NewSessionMigrationRepository(db, logger)
	voiceNoteRepo := repositories.NewVoiceNoteRepository(db)
	revocationRepo := repositories.NewTokenRevocationRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(loginAttemptRepo, logger, cfg.Auth.CleanupInterval, cfg.Auth.AttemptMaxAge)
	cleanupManager.SetTokenPurger(revocationRepo)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.FailureDelayBaseMs,
		RandomDelayMs: cfg.Auth.FailureDelayJitter,
	})

	// Initialize services
	loginGuard := services.NewLoginGuardService(loginAttemptRepo, services.LoginGuardConfig{
		MaxFailedAttempts: cfg.Guard.MaxFailedAttempts,
		LockoutDuration:   cfg.Guard.LockoutDuration,
		AttemptWindow:     cfg.Guard.AttemptWindow,
		RetentionPerEmail: cfg.Guard.RetentionPerEmail,
	}, logger)
	usageMeter := services.NewUsageMeterService(sessionRepo, cfg.Anonymous.UsageLimit, logger)
	migrationService := services.NewSessionMigrationService(migrationRepo, logger)
	voiceNoteService := services.NewVoiceNoteService(voiceNoteRepo, logger)

	authService := services.NewAuthService(userRepo, loginGuard, migrationService, tokenManager, logger)
	authService.SetFailureDelay(timingDelay)
	authService.SetTokenRevoker(revocationRepo)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, loginGuard, ipConfig)
	anonymousHandler := handlers.NewAnonymousHandler(usageMeter, migrationService)
	voiceNoteHandler := handlers.NewVoiceNoteHandler(voiceNoteService)

	corsConfig := middlewareCustom.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:      authHandler,
		AnonymousHandler: anonymousHandler,
		VoiceNoteHandler: voiceNoteHandler,
		TokenManager:     tokenManager,
		Revocation:       revocationRepo,
		RevocationConfig: auth.RevocationConfig{Logger: logger},
		UsageMeter:       usageMeter,
		RateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.LoginRequestsPerMinute,
			IPConfig:          ipConfig,
		},
		IPConfig: ipConfig,
		Logger:   logger,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		stats := db.Stats()
		pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"database": "up",
			"pool": map[string]int32{
				"total": stats.TotalConns(),
				"idle":  stats.IdleConns(),
			},
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
