// Package apperr defines the error taxonomy shared across services.
// Handlers translate these into HTTP status codes with generic messages;
// the underlying cause is only ever logged server-side.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed covers bad credentials. Callers must not be
	// able to tell "unknown email" apart from "wrong password".
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidToken covers malformed, forged and expired tokens alike.
	ErrInvalidToken = errors.New("invalid token")

	// ErrAuthorizationFailed means a valid identity lacks the required
	// role, permission or tenant membership.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrHashingFailed indicates a corrupt stored hash or a hashing
	// backend fault. A server error, never a user error.
	ErrHashingFailed = errors.New("hash operation failed")

	// ErrNotFound indicates an absent identity, session or tenant.
	ErrNotFound = errors.New("resource not found")
)

// ValidationError reports a malformed request payload with the offending
// field so the client can surface a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AsValidation unwraps err into a ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
