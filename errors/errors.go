package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")

	// Admission failures. Both are terminated silently on the wire so a
	// client cannot distinguish a bad credential from a revoked session.
	ErrCredentialInvalid = fmt.Errorf("credential invalid")
	ErrSessionInvalid    = fmt.Errorf("session invalid or expired")

	// ErrAlreadyOnline is returned by the presence registry when an entry
	// for the identity already exists. The registry never overwrites silently.
	ErrAlreadyOnline = fmt.Errorf("identity already online")

	// ErrEvictionExhausted means a new connection lost the eviction race
	// too many times and was dropped instead of looping.
	ErrEvictionExhausted = fmt.Errorf("eviction retries exhausted")

	ErrSessionNotFound    = fmt.Errorf("session not found")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrForbidden          = fmt.Errorf("insufficient role")
)

// MapToHTTPStatus converts domain errors to HTTP status codes for the API
// layer. Unknown errors map to 500 so store failures reach the initiating
// caller as a structured failure instead of being swallowed.
func MapToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrCredentialInvalid),
		errors.Is(err, ErrSessionInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
