package service

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned for operations on an unknown chat session
var ErrSessionNotFound = errors.New("chat session not found")

// ValidationError reports a request rejected before reaching storage
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a durable store failure. It is surfaced to the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EphemeralStoreError wraps a typing/presence store failure.
// The coordinator logs and swallows these; they never fail a request.
type EphemeralStoreError struct {
	Op  string
	Key string
	Err error
}

func (e *EphemeralStoreError) Error() string {
	return fmt.Sprintf("ephemeral store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *EphemeralStoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is a StorageError
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
