// Package memerr defines the error taxonomy for the memory core. Callers
// classify failures with errors.Is against the four sentinels; operations wrap
// them with context via fmt.Errorf and %w.
package memerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means an entity with the given id already exists.
	ErrConflict = errors.New("already exists")
	// ErrValidation means a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrPersistenceIO means a snapshot write or load failed.
	ErrPersistenceIO = errors.New("persistence I/O failed")
)

// NotFound wraps ErrNotFound with the entity kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// Conflict wraps ErrConflict with the entity kind and id.
func Conflict(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrConflict)
}

// Validation wraps ErrValidation with a reason.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// PersistenceIO wraps ErrPersistenceIO around an underlying I/O error.
func PersistenceIO(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrPersistenceIO)
}
