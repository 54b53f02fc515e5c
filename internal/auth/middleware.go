package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/idguard/internal/models"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// TokenRevocationChecker reports whether a token was signed out early
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// RevocationConfig controls what happens when the revocation lookup fails.
// With FailClosed unset the token is accepted, since it still passed
// signature and expiry checks.
type RevocationConfig struct {
	FailClosed bool
	Logger     *slog.Logger
}

// AuthMiddleware rejects requests without a valid bearer token and injects
// the claims into the request context
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return AuthMiddlewareWithRevocation(tm, nil, RevocationConfig{})
}

// AuthMiddlewareWithRevocation is AuthMiddleware that also rejects revoked tokens
func AuthMiddlewareWithRevocation(tm *TokenManager, checker TokenRevocationChecker, config RevocationConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Missing or malformed authorization header")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			revoked, err := isRevoked(r.Context(), checker, claims, config)
			if err != nil {
				pkghttp.WriteServiceUnavailable(w, "Unable to verify token status")
				return
			}
			if revoked {
				pkghttp.WriteUnauthorized(w, "Token has been revoked")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth injects claims when a valid bearer token is present and lets
// every other request through as anonymous
func OptionalAuth(tm *TokenManager) func(next http.Handler) http.Handler {
	return OptionalAuthWithRevocation(tm, nil, RevocationConfig{})
}

// OptionalAuthWithRevocation is OptionalAuth that treats a revoked token
// like no token at all
func OptionalAuthWithRevocation(tm *TokenManager, checker TokenRevocationChecker, config RevocationConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString, ok := bearerToken(r); ok {
				if claims, err := tm.ValidateToken(tokenString); err == nil {
					if revoked, err := isRevoked(r.Context(), checker, claims, config); err == nil && !revoked {
						r = r.WithContext(WithClaims(r.Context(), claims))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isRevoked returns an error only when the lookup failed and the config
// fails closed
func isRevoked(ctx context.Context, checker TokenRevocationChecker, claims *models.TokenClaims, config RevocationConfig) (bool, error) {
	if checker == nil || claims.ID == "" {
		return false, nil
	}

	revoked, err := checker.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		if config.Logger != nil {
			config.Logger.Error("failed to check token revocation",
				slog.String("user_id", claims.UserID),
				slog.Bool("fail_closed", config.FailClosed),
				slog.Any("error", err))
		}
		if config.FailClosed {
			return false, err
		}
		return false, nil
	}
	return revoked, nil
}

// WithClaims stores claims in a context
func WithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// GetUserFromContext returns the authenticated caller, or nil for anonymous requests
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
