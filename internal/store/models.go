package store

import (
	"fmt"
	"time"
)

// Role is a permission level on an event. Roles are hierarchical: a role
// grants every operation allowed to lower-ranked roles.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Rank maps a role onto the integer hierarchy used for authorization
// comparisons. Unknown roles rank below viewer.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// ParseRole validates an incoming role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleEditor, RoleViewer:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// User is a registered account. The global Role is the default assigned at
// registration; it never authorizes access to a specific event.
type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Event is the collaboratively edited resource under version control.
// OwnerID is set at creation and never changes.
type Event struct {
	ID                int64
	Title             string
	Description       string
	StartTime         time.Time
	EndTime           time.Time
	Location          *string
	IsRecurring       bool
	RecurrencePattern map[string]any
	OwnerID           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EventPermission is an explicit (event, user, role) grant. At most one row
// exists per (event, user) pair; grants are upserted, never duplicated.
type EventPermission struct {
	ID      int64
	EventID int64
	UserID  int64
	Role    Role
}

// EventVersion is an immutable snapshot of an event's mutable fields.
// Version numbers per event are contiguous starting at 1. Rows are appended
// inside the same transaction that mutates the event and are never edited
// or deleted while the event exists.
type EventVersion struct {
	ID            int64
	EventID       int64
	VersionNumber int64
	Data          map[string]any
	CreatedBy     int64
	CreatedAt     time.Time
}
