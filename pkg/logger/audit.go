package logger

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Audit event types
const (
	EventLogin       = "login"
	EventRegister    = "register"
	EventLogout      = "logout"
	EventLockout     = "account_locked"
	EventMigration   = "session_migrated"
	EventQuotaDenied = "anonymous_quota_denied"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

func (al *AuditLogger) emit(success bool, attrs []slog.Attr) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAuthAttempt logs login and registration outcomes. Emails are masked.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.emit(event.Success, attrs)
}

// LogLockout logs the failed login that locked an email out. Call it once
// per lock, not on every status read.
func (al *AuditLogger) LogLockout(email, ipAddress string, lockedUntil time.Time) {
	attrs := []slog.Attr{
		slog.String("audit_type", "guard"),
		slog.String("event_type", EventLockout),
		slog.String("email", SanitizedEmail(email)),
		slog.String("locked_until", lockedUntil.UTC().Format(time.RFC3339)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	al.emit(false, attrs)
}

// LogMigration logs a completed anonymous session migration
func (al *AuditLogger) LogMigration(sessionID, userID string, migrated int) {
	al.emit(true, []slog.Attr{
		slog.String("audit_type", "anonymous"),
		slog.String("event_type", EventMigration),
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
		slog.String("migrated", strconv.Itoa(migrated)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	})
}

// LogQuotaDenied logs an anonymous request turned away by the usage meter
func (al *AuditLogger) LogQuotaDenied(sessionID, ipAddress, reason string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "anonymous"),
		slog.String("event_type", EventQuotaDenied),
		slog.String("session_id", sessionID),
		slog.String("failure_reason", reason),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	al.emit(false, attrs)
}
