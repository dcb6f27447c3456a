// Package apperr defines the error kinds shared by the project, membership, task and user services.
// Services wrap a kind with context (fmt.Errorf("%w: ...", kind)); callers match with errors.Is.
// The gRPC boundary maps each kind to a status code (see internal/server).
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a project, task, user or assignee does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAMember is returned when the caller holds no membership in the project.
	ErrNotAMember = errors.New("not a member of this project")
	// ErrPermissionDenied is returned when a membership exists but its role lacks the action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProjectMismatch is returned when a task is addressed through a project it does not belong to.
	ErrProjectMismatch = errors.New("task does not belong to this project")
	// ErrInvalidStatus is returned for a status literal outside the task status set.
	ErrInvalidStatus = errors.New("invalid status value")
	// ErrValidation is returned for malformed input (empty name, bad email, duplicate registration).
	ErrValidation = errors.New("validation error")
	// ErrInternal is returned for persistence failures; these are not retried.
	ErrInternal = errors.New("internal error")
)

// NotFound wraps ErrNotFound with the entity kind and id, e.g. "task 12: not found".
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// Validation wraps ErrValidation with a message.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Internal wraps a persistence error as ErrInternal, keeping the cause in the chain.
// Errors that already carry a kind are returned unchanged.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}

var kinds = []error{
	ErrNotFound,
	ErrNotAMember,
	ErrPermissionDenied,
	ErrProjectMismatch,
	ErrInvalidStatus,
	ErrValidation,
	ErrInternal,
}

// Kind returns the first error kind found in err's chain, or nil when err carries none.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
