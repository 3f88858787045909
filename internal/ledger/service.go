// Package ledger implements the versioning and authorization core: every
// event mutation appends an immutable snapshot with a contiguous
// per-event version number, and every operation is gated by the role
// hierarchy OWNER > EDITOR > VIEWER.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neofi/eventledger/internal/metrics"
	"github.com/neofi/eventledger/internal/store"
)

const (
	conflictRetries = 3
	conflictBackoff = 25 * time.Millisecond
)

// Service coordinates event mutations, snapshot history and permission
// grants on top of the store.
type Service struct {
	store *store.Store
}

// NewService wires the ledger core to its backing store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// EventInput carries the fields for a new event.
type EventInput struct {
	Title             string
	Description       string
	StartTime         time.Time
	EndTime           time.Time
	Location          *string
	IsRecurring       bool
	RecurrencePattern map[string]any
}

// EventPatch carries a partial update. Nil fields are left unchanged;
// the patch cannot distinguish "unset" from "set to the zero value".
type EventPatch struct {
	Title             *string
	Description       *string
	StartTime         *time.Time
	EndTime           *time.Time
	Location          *string
	IsRecurring       *bool
	RecurrencePattern map[string]any
}

func validateWindow(start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}
	return nil
}

// CreateEvent creates an event owned by ownerID together with its version 1
// snapshot, in one atomic unit. Creation needs no prior authorization; the
// creator becomes the owner.
func (s *Service) CreateEvent(ctx context.Context, ownerID int64, in EventInput) (*store.Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	ev := store.Event{
		Title:             in.Title,
		Description:       in.Description,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		Location:          in.Location,
		IsRecurring:       in.IsRecurring,
		RecurrencePattern: in.RecurrencePattern,
		OwnerID:           ownerID,
	}
	created, _, err := s.store.Events.CreateWithSnapshot(ctx, ev, Snapshot(ev), ownerID)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

// UpdateEvent applies a partial update as actorID (EDITOR or above) and
// appends the next version snapshot. The read-modify-write retries a
// bounded number of times when a competing writer takes the version number
// first; exhaustion surfaces ErrConflict and the caller may retry the whole
// request.
func (s *Service) UpdateEvent(ctx context.Context, eventID, actorID int64, patch EventPatch) (*store.Event, error) {
	ev, err := s.authorizeEvent(ctx, eventID, actorID, store.RoleEditor)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= conflictRetries; attempt++ {
		if attempt > 0 {
			metrics.CountVersionConflict()
			select {
			case <-time.After(time.Duration(attempt) * conflictBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if ev, err = s.store.Events.GetByID(ctx, eventID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, ErrNotFound
				}
				return nil, fmt.Errorf("update event: %w", err)
			}
		}

		merged := applyPatch(*ev, patch)
		if err := validateWindow(merged.StartTime, merged.EndTime); err != nil {
			return nil, err
		}

		updated, _, err := s.store.Events.UpdateWithSnapshot(ctx, merged, Snapshot(merged), actorID)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("update event: %w", err)
		}
		return updated, nil
	}
	return nil, ErrConflict
}

func applyPatch(ev store.Event, patch EventPatch) store.Event {
	if patch.Title != nil {
		ev.Title = *patch.Title
	}
	if patch.Description != nil {
		ev.Description = *patch.Description
	}
	if patch.StartTime != nil {
		ev.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		ev.EndTime = *patch.EndTime
	}
	if patch.Location != nil {
		ev.Location = patch.Location
	}
	if patch.IsRecurring != nil {
		ev.IsRecurring = *patch.IsRecurring
	}
	if patch.RecurrencePattern != nil {
		ev.RecurrencePattern = patch.RecurrencePattern
	}
	return ev
}

// GetEvent returns the event if userID holds VIEWER or above on it.
func (s *Service) GetEvent(ctx context.Context, eventID, userID int64) (*store.Event, error) {
	return s.authorizeEvent(ctx, eventID, userID, store.RoleViewer)
}

// ListEvents returns the events userID owns or has been granted access to.
func (s *Service) ListEvents(ctx context.Context, userID int64) ([]store.Event, error) {
	events, err := s.store.Events.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// DeleteEvent removes the event and, with it, its grants and full version
// history (cascade policy). Requires OWNER.
func (s *Service) DeleteEvent(ctx context.Context, eventID, actorID int64) error {
	if _, err := s.authorizeEvent(ctx, eventID, actorID, store.RoleOwner); err != nil {
		return err
	}
	if err := s.store.Events.Delete(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// GrantPermission upserts targetUserID's role on the event. The granting
// user must hold OWNER. Re-granting an existing pair replaces the role
// instead of adding a second row.
func (s *Service) GrantPermission(ctx context.Context, eventID, grantingUserID, targetUserID int64, role string) (*store.EventPermission, error) {
	parsed, err := store.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, err := s.authorizeEvent(ctx, eventID, grantingUserID, store.RoleOwner); err != nil {
		return nil, err
	}

	if _, err := s.store.Users.GetByID(ctx, targetUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, targetUserID)
		}
		return nil, fmt.Errorf("grant permission: %w", err)
	}

	perm, err := s.store.Permissions.Upsert(ctx, store.EventPermission{
		EventID: eventID,
		UserID:  targetUserID,
		Role:    parsed,
	})
	if err != nil {
		return nil, fmt.Errorf("grant permission: %w", err)
	}
	return perm, nil
}

// ListHistory returns all snapshots of the event, newest first. Requires
// VIEWER.
func (s *Service) ListHistory(ctx context.Context, eventID, userID int64) ([]store.EventVersion, error) {
	if _, err := s.authorizeEvent(ctx, eventID, userID, store.RoleViewer); err != nil {
		return nil, err
	}
	versions, err := s.store.Versions.History(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return versions, nil
}

// GetVersion returns one snapshot by version number. Requires VIEWER.
func (s *Service) GetVersion(ctx context.Context, eventID, versionNumber, userID int64) (*store.EventVersion, error) {
	if _, err := s.authorizeEvent(ctx, eventID, userID, store.RoleViewer); err != nil {
		return nil, err
	}
	version, err := s.store.Versions.Get(ctx, eventID, versionNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: version %d", ErrNotFound, versionNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// DiffVersions compares two snapshots of the same event. Requires VIEWER.
func (s *Service) DiffVersions(ctx context.Context, eventID, v1, v2, userID int64) ([]FieldDiff, error) {
	if _, err := s.authorizeEvent(ctx, eventID, userID, store.RoleViewer); err != nil {
		return nil, err
	}
	a, err := s.store.Versions.Get(ctx, eventID, v1)
	if err == nil {
		var b *store.EventVersion
		if b, err = s.store.Versions.Get(ctx, eventID, v2); err == nil {
			return Diff(a.Data, b.Data), nil
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: version", ErrNotFound)
	}
	return nil, fmt.Errorf("diff versions: %w", err)
}
