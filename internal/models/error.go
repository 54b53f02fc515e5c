package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login guard errors
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Anonymous usage errors
	ErrQuotaExceeded    = errors.New("anonymous usage limit reached")
	ErrSessionMigrated  = errors.New("anonymous session was migrated to an account")
	ErrUsageUnavailable = errors.New("unable to verify anonymous usage")
	ErrMissingSessionID = errors.New("session id is required")

	// Migration errors
	ErrMigrationFailed = errors.New("session migration failed")
)
