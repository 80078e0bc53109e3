package whisperwall

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the authentication core. Store implementations and
// strategies wrap these so callers can branch with errors.Is without caring
// which backend produced them.
var (
	// ErrDuplicateUsername is returned when a creation attempt loses the
	// first-writer-wins race on a username.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrInvalidCredentials covers both "no such user" and "wrong password".
	// The two cases must stay indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound is returned by id/username lookups that miss.
	ErrUserNotFound = errors.New("user not found")

	// ErrStoreUnavailable wraps connectivity/IO failures of the user store.
	ErrStoreUnavailable = errors.New("user store unavailable")

	// ErrInvalidSession marks a malformed or stale session payload. Session
	// restoration treats it as "no session" rather than failing the request.
	ErrInvalidSession = errors.New("invalid session")

	// ErrUpstreamProvider wraps OAuth exchange or profile fetch failures.
	ErrUpstreamProvider = errors.New("upstream provider request failed")

	// ErrUpstreamTimeout is the bounded-timeout variant of ErrUpstreamProvider.
	ErrUpstreamTimeout = errors.New("upstream provider request timed out")
)

// Error codes attached to AuthError for HTTP-facing handlers.
const (
	ErrCodeMissingField  = "missing_field"
	ErrCodeInvalidCreds  = "invalid_credentials"
	ErrCodeUsernameTaken = "username_taken"
	ErrCodeStoreFailure  = "store_failure"
)

// AuthError carries a machine-readable code and the offending field for the
// HTTP handlers' error hooks.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError creates an AuthError with the given code, message and field.
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// AuthErrorHandler is called when login or registration fails. Returning
// true means the handler produced the response; false falls back to the
// default behavior.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool
