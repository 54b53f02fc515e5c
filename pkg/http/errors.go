package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// LockoutResponse is returned while an account is temporarily locked
type LockoutResponse struct {
	ErrorResponse
	LockedUntil time.Time `json:"locked_until"`
	RetryAfter  int       `json:"retry_after"`
}

// QuotaResponse is returned when an anonymous session is denied usage
type QuotaResponse struct {
	ErrorResponse
	Usage interface{} `json:"usage,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// WriteAccountLocked writes a 429 with a Retry-After header. The message does
// not reveal whether the email belongs to an account.
func WriteAccountLocked(w http.ResponseWriter, lockedUntil time.Time, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteJSON(w, http.StatusTooManyRequests, LockoutResponse{
		ErrorResponse: ErrorResponse{
			Error:   "account_locked",
			Message: "Account temporarily locked. Try again after " + lockedUntil.UTC().Format(time.RFC3339) + ".",
		},
		LockedUntil: lockedUntil.UTC(),
		RetryAfter:  retryAfter,
	})
}

// WriteQuotaDenied writes a 403 for an anonymous session that may not proceed
func WriteQuotaDenied(w http.ResponseWriter, errorCode, message string, usage interface{}) {
	WriteJSON(w, http.StatusForbidden, QuotaResponse{
		ErrorResponse: ErrorResponse{Error: errorCode, Message: message},
		Usage:         usage,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
