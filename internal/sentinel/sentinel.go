// Package sentinel holds the error taxonomy shared by the access request store,
// the notification publisher and the HTTP layer.
//
//   - ErrInvalidInput: client-correctable input, never reaches persistence
//   - ErrPermissionDenied: caller tier or ownership does not allow the action
//   - ErrNotFound: referenced row does not exist (stale local state)
//   - ErrConflict: one-shot transition already happened
//   - ErrStorage: persistence failed; safe to resubmit by hand
//   - ErrAuth: session token invalid, expired or revoked
//   - ErrNetwork: the API could not be reached; safe to resubmit by hand
package sentinel

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("resource not found")
	ErrConflict         = errors.New("request already handled")
	ErrStorage          = errors.New("storage unavailable")
	ErrAuth             = errors.New("invalid or expired session")
	ErrNetwork          = errors.New("network unavailable")
)

// ValidationError describes which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid builds a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Storage wraps a persistence failure so callers can match ErrStorage
// while keeping the driver error in the chain.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Network wraps a transport failure between a client and the API.
func Network(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
}
