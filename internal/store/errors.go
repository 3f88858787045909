package store

import "errors"

var (
	// ErrNotFound indicates a missing record lookup.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a version-number collision between concurrent
	// mutations of the same event. Callers may retry the whole mutation.
	ErrConflict = errors.New("version conflict")

	// ErrDuplicate indicates a uniqueness violation on user identity
	// columns (email or username).
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidRole indicates a role outside the defined hierarchy.
	ErrInvalidRole = errors.New("invalid role")
)
