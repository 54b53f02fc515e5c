package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/idguard/internal/auth"
	"github.com/BradenHooton/idguard/internal/models"
	pkghttp "github.com/BradenHooton/idguard/pkg/http"
	pkglogger "github.com/BradenHooton/idguard/pkg/logger"
)

// UsageMeter reserves anonymous quota
type UsageMeter interface {
	CheckAndReserve(ctx context.Context, sessionID string) (*models.UsageInfo, error)
}

type usageContextKey struct{}

// Messages shown to anonymous callers that are turned away
const (
	QuotaExhaustedMessage   = "Free usage exhausted. Sign up to continue."
	SessionMigratedMessage  = "This session now belongs to an account. Sign in to continue."
	UsageUnavailableMessage = "Free usage could not be verified. Sign up or try again later."
)

// RequireAnonymousQuota reserves one unit of free usage for anonymous callers
// before the wrapped handler runs. Authenticated callers pass straight
// through. Any failure to reserve is a denial.
func RequireAnonymousQuota(meter UsageMeter, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	audit := pkglogger.NewAuditLogger(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.GetUserFromContext(r) != nil {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := pkghttp.ExtractSessionID(r)
			if sessionID == "" {
				pkghttp.WriteError(w, http.StatusBadRequest, "missing_session_id", "A session id is required for anonymous use")
				return
			}
			if !pkghttp.ValidSessionID(sessionID) {
				pkghttp.WriteError(w, http.StatusBadRequest, "invalid_session_id", "The session id is malformed")
				return
			}

			info, err := meter.CheckAndReserve(r.Context(), sessionID)
			if err != nil {
				ip := pkghttp.ExtractClientIP(r, ipConfig)
				switch {
				case errors.Is(err, models.ErrQuotaExceeded):
					audit.LogQuotaDenied(sessionID, ip, "quota_exceeded")
					pkghttp.WriteQuotaDenied(w, "usage_limit_exceeded", QuotaExhaustedMessage, info)
				case errors.Is(err, models.ErrSessionMigrated):
					audit.LogQuotaDenied(sessionID, ip, "session_migrated")
					pkghttp.WriteQuotaDenied(w, "session_migrated", SessionMigratedMessage, info)
				case errors.Is(err, models.ErrMissingSessionID):
					pkghttp.WriteError(w, http.StatusBadRequest, "missing_session_id", "A session id is required for anonymous use")
				default:
					audit.LogQuotaDenied(sessionID, ip, "usage_unavailable")
					pkghttp.WriteQuotaDenied(w, "usage_unavailable", UsageUnavailableMessage, nil)
				}
				return
			}

			ctx := context.WithValue(r.Context(), usageContextKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UsageFromContext returns the reservation made by RequireAnonymousQuota,
// or nil for authenticated requests
func UsageFromContext(ctx context.Context) *models.UsageInfo {
	info, _ := ctx.Value(usageContextKey{}).(*models.UsageInfo)
	return info
}
