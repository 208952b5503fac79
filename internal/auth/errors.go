package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType is the stable machine-readable error taxonomy exposed to any
// transport.
type ErrorType string

const (
	ErrTypeInvalidCredentials      ErrorType = "INVALID_CREDENTIALS"
	ErrTypeAccountInactive         ErrorType = "ACCOUNT_INACTIVE"
	ErrTypeAccountLocked           ErrorType = "ACCOUNT_LOCKED"
	ErrTypeRateLimitExceeded       ErrorType = "RATE_LIMIT_EXCEEDED"
	ErrTypeWeakPassword            ErrorType = "WEAK_PASSWORD"
	ErrTypeTokenInvalid            ErrorType = "TOKEN_INVALID"
	ErrTypeTokenExpired            ErrorType = "TOKEN_EXPIRED"
	ErrTypeInsufficientPermissions ErrorType = "INSUFFICIENT_PERMISSIONS"
	ErrTypeTenantBoundaryViolation ErrorType = "TENANT_BOUNDARY_VIOLATION"
	ErrTypeContextMismatch         ErrorType = "CONTEXT_MISMATCH"
	ErrTypeContextUnresolved       ErrorType = "CONTEXT_UNRESOLVED"
	ErrTypePrincipalNotFound       ErrorType = "PRINCIPAL_NOT_FOUND"
	ErrTypeBackendUnavailable      ErrorType = "AUTH_BACKEND_UNAVAILABLE"
	ErrTypeAuthenticationFailed    ErrorType = "AUTHENTICATION_FAILED"
)

// Error is the typed error returned by every engine operation. Code is the
// conventional HTTP status for the type; Details carries structured fields
// for client-side messaging and never contains secrets.
type Error struct {
	Type    ErrorType      `json:"type"`
	Message string         `json:"message"`
	Code    int            `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is lets errors.Is match two typed errors by taxonomy type.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type
}

// AsError extracts a typed *Error, remapping anything foreign to
// AUTHENTICATION_FAILED so raw store errors never reach callers.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return ErrAuthenticationFailed()
}

func ErrInvalidCredentials() *Error {
	return &Error{
		Type:    ErrTypeInvalidCredentials,
		Message: "invalid email or password",
		Code:    http.StatusUnauthorized,
	}
}

func ErrAccountInactive() *Error {
	return &Error{
		Type:    ErrTypeAccountInactive,
		Message: "account is deactivated",
		Code:    http.StatusForbidden,
	}
}

func ErrAccountLocked(lockedUntil time.Time) *Error {
	return &Error{
		Type:    ErrTypeAccountLocked,
		Message: "account temporarily locked after repeated failures",
		Code:    http.StatusLocked,
		Details: map[string]any{"locked_until": lockedUntil.UTC().Format(time.RFC3339)},
	}
}

func ErrRateLimitExceeded(resetTime time.Time) *Error {
	return &Error{
		Type:    ErrTypeRateLimitExceeded,
		Message: "too many attempts, try again later",
		Code:    http.StatusTooManyRequests,
		Details: map[string]any{"reset_time": resetTime.UTC().Format(time.RFC3339)},
	}
}

func ErrWeakPassword(violations []string) *Error {
	return &Error{
		Type:    ErrTypeWeakPassword,
		Message: "password does not meet strength requirements",
		Code:    http.StatusBadRequest,
		Details: map[string]any{"violations": violations},
	}
}

func ErrTokenInvalid() *Error {
	return &Error{
		Type:    ErrTypeTokenInvalid,
		Message: "token is invalid",
		Code:    http.StatusUnauthorized,
	}
}

func ErrTokenExpired() *Error {
	return &Error{
		Type:    ErrTypeTokenExpired,
		Message: "token has expired",
		Code:    http.StatusUnauthorized,
	}
}

func ErrInsufficientPermissions(required, missing []string) *Error {
	details := map[string]any{}
	if len(required) > 0 {
		details["required"] = required
	}
	if len(missing) > 0 {
		details["missing"] = missing
	}
	e := &Error{
		Type:    ErrTypeInsufficientPermissions,
		Message: "insufficient permissions",
		Code:    http.StatusForbidden,
	}
	if len(details) > 0 {
		e.Details = details
	}
	return e
}

func ErrTenantBoundaryViolation(requested string) *Error {
	return &Error{
		Type:    ErrTypeTenantBoundaryViolation,
		Message: "access outside tenant boundary",
		Code:    http.StatusForbidden,
		Details: map[string]any{"requested_tenant": requested},
	}
}

func ErrContextMismatch(detail string) *Error {
	return &Error{
		Type:    ErrTypeContextMismatch,
		Message: "request context does not match principal",
		Code:    http.StatusForbidden,
		Details: map[string]any{"reason": detail},
	}
}

func ErrContextUnresolved() *Error {
	return &Error{
		Type:    ErrTypeContextUnresolved,
		Message: "request context could not be determined",
		Code:    http.StatusBadRequest,
	}
}

func ErrPrincipalNotFound() *Error {
	return &Error{
		Type:    ErrTypePrincipalNotFound,
		Message: "principal no longer exists",
		Code:    http.StatusUnauthorized,
	}
}

func ErrBackendUnavailable() *Error {
	return &Error{
		Type:    ErrTypeBackendUnavailable,
		Message: "authentication backend unavailable",
		Code:    http.StatusServiceUnavailable,
	}
}

func ErrAuthenticationFailed() *Error {
	return &Error{
		Type:    ErrTypeAuthenticationFailed,
		Message: "authentication failed",
		Code:    http.StatusInternalServerError,
	}
}

// ErrNotFound is the sentinel returned by principal stores when a record does
// not exist. The engine maps it to PRINCIPAL_NOT_FOUND or
// INVALID_CREDENTIALS depending on the flow.
var ErrNotFound = errors.New("auth: not found")

// ErrConflict is returned by stores on uniqueness violations.
var ErrConflict = errors.New("auth: already exists")
