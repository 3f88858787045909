package store

import (
	"context"

	"github.com/samber/mo"
)

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	Create(ctx context.Context, user User) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// EventRepository handles event storage. The WithSnapshot methods persist
// the event mutation and its version snapshot as one atomic unit; the
// version number is assigned inside that unit under a per-event lock, so
// concurrent writers to the same event can neither skip nor reuse a number.
type EventRepository interface {
	GetByID(ctx context.Context, id int64) (*Event, error)
	// ListForUser returns events the user owns plus events shared with
	// them through an explicit grant, ordered by id.
	ListForUser(ctx context.Context, userID int64) ([]Event, error)
	CreateWithSnapshot(ctx context.Context, ev Event, snapshot map[string]any, actorID int64) (*Event, *EventVersion, error)
	UpdateWithSnapshot(ctx context.Context, ev Event, snapshot map[string]any, actorID int64) (*Event, *EventVersion, error)
	// Delete removes the event together with its grants and version
	// history in one transaction.
	Delete(ctx context.Context, id int64) error
}

// PermissionRepository stores explicit role grants per (event, user) pair.
type PermissionRepository interface {
	// Upsert replaces the role of an existing grant or creates a new one;
	// it never produces a second row for the same (event, user) pair.
	Upsert(ctx context.Context, perm EventPermission) (*EventPermission, error)
	// Lookup returns the explicitly granted role, or None when the pair
	// has no grant. Ownership is not consulted here; the authorization
	// gate layers that on top.
	Lookup(ctx context.Context, eventID, userID int64) (mo.Option[Role], error)
	ListForEvent(ctx context.Context, eventID int64) ([]EventPermission, error)
}

// VersionRepository reads the append-only snapshot history. Appends happen
// only inside EventRepository's WithSnapshot transactions.
type VersionRepository interface {
	// History returns all snapshots for an event, highest version first.
	History(ctx context.Context, eventID int64) ([]EventVersion, error)
	Get(ctx context.Context, eventID, versionNumber int64) (*EventVersion, error)
}
