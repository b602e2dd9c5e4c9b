package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of every per-transaction validation failure
	ErrValidation = errors.New("validation failed")

	// ErrMissingMetadata is returned when a required metadata field is absent after parsing
	ErrMissingMetadata = errors.New("missing metadata")

	// ErrEntityNotFound is returned when an entity referenced by an event does not exist
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUnauthorized is returned when the signer may not act for the user
	ErrUnauthorized = errors.New("signer not authorized")

	// ErrDeserialize is returned when a queued challenge event or a consumed message cannot be decoded
	ErrDeserialize = errors.New("failed to deserialize event")

	// ErrLockNotAcquired is returned when a blocking lock acquire times out
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// ValidationError describes why one transaction was skipped. It unwraps to
// ErrValidation or ErrMissingMetadata, plus an optional cause.
type ValidationError struct {
	Kind   error
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Invalid returns a validation error with a formatted reason
func Invalid(format string, args ...any) error {
	return &ValidationError{Kind: ErrValidation, Reason: fmt.Sprintf(format, args...)}
}

// InvalidCause returns a validation error wrapping cause
func InvalidCause(cause error, format string, args ...any) error {
	return &ValidationError{Kind: ErrValidation, Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// MissingMetadata returns a missing-metadata error for field
func MissingMetadata(field string) error {
	return &ValidationError{Kind: ErrMissingMetadata, Reason: fmt.Sprintf("field %q is required", field)}
}

// IsSkippable reports whether err only affects the transaction that produced it
func IsSkippable(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrMissingMetadata)
}
