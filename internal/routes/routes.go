package routes

import (
	"log/slog"

	"github.com/BradenHooton/idguard/internal/auth"
	"github.com/BradenHooton/idguard/internal/handlers"
	"github.com/BradenHooton/idguard/internal/middleware"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Dependencies groups what the router needs
type Dependencies struct {
	AuthHandler      *handlers.AuthHandler
	AnonymousHandler *handlers.AnonymousHandler
	VoiceNoteHandler *handlers.VoiceNoteHandler
	TokenManager     *auth.TokenManager
	Revocation       auth.TokenRevocationChecker
	RevocationConfig auth.RevocationConfig
	UsageMeter       middleware.UsageMeter
	RateLimit        middleware.RateLimitConfig
	IPConfig         *pkghttp.IPConfig
	Logger           *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	authLimit := middleware.RateLimitByIP(deps.RateLimit)
	requireAuth := auth.AuthMiddlewareWithRevocation(deps.TokenManager, deps.Revocation, deps.RevocationConfig)
	optionalAuth := auth.OptionalAuthWithRevocation(deps.TokenManager, deps.Revocation, deps.RevocationConfig)

	// Public routes - no authentication required
	router.With(authLimit).Post("/auth/login", deps.AuthHandler.Login)
	router.With(authLimit).Post("/auth/register", deps.AuthHandler.Register)

	router.Route("/anonymous", func(r chi.Router) {
		r.Post("/session", deps.AnonymousHandler.CreateSession)
		r.Get("/usage/{sessionId}", deps.AnonymousHandler.GetUsage)
		r.Get("/voice-notes/{sessionId}", deps.VoiceNoteHandler.ListForSession)

		// Signed-in callers skip the quota
		r.With(
			optionalAuth,
			middleware.RequireAnonymousQuota(deps.UsageMeter, deps.IPConfig, deps.Logger),
		).Post("/reserve", deps.AnonymousHandler.Reserve)

		r.With(requireAuth).Post("/migrate", deps.AnonymousHandler.Migrate)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/auth/me", deps.AuthHandler.Me)
		r.Post("/auth/logout", deps.AuthHandler.Logout)
		r.Get("/auth/attempts", deps.AuthHandler.RecentAttempts)
	})
}
