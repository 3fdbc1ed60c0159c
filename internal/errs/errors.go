// Package errs defines the error taxonomy shared by the content API engine.
// Components wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can classify failures without depending on store or policy internals.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed input, rejected before any
	// store access (e.g. batch rows missing a primary key).
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the access control policy or a policy
	// hook denies the action.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when an id or collection does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is returned when operation preconditions are unmet
	// (e.g. soft delete on a collection without a status field).
	ErrBadRequest = errors.New("bad request")

	// ErrStore is returned for connectivity or constraint failures in the
	// backing store. Never retried internally.
	ErrStore = errors.New("store error")
)

// Forbidden wraps ErrForbidden with a caller-facing message.
func Forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Validation wraps ErrValidation with a caller-facing message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// BadRequest wraps ErrBadRequest with a caller-facing message.
func BadRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with a caller-facing message.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsValidation returns true if the error is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsForbidden returns true if the error is ErrForbidden.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBadRequest returns true if the error is ErrBadRequest.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsStore returns true if the error is ErrStore.
func IsStore(err error) bool {
	return errors.Is(err, ErrStore)
}
