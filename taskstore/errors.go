package taskstore

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired rejects operations attempted with no signed-in identity.
	ErrAuthRequired = errors.New("authentication required")
	// ErrNotFound reports an id missing from the authoritative collection.
	ErrNotFound = errors.New("task not found")

	errEmptyTitle = errors.New("title must not be empty")
)

// ValidationError rejects a request before any remote call is made.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RemoteError wraps a failure from the persistence collaborator. The
// collection keeps its last-known-good state when one is returned.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *RemoteError) Unwrap() error { return e.Err }
