package ledger

import "errors"

var (
	// ErrValidation indicates malformed input, rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a missing version or user lookup after access
	// was already granted.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates a failed authorization check. It is also
	// returned when the event does not exist, so callers cannot probe for
	// resource existence.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates the bounded retry for a version-number race
	// was exhausted. The whole request may be retried safely.
	ErrConflict = errors.New("concurrent update conflict")
)
