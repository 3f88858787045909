package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/neofi/eventledger/internal/store"
)

// Authorize decides whether a user may act on an event at the required
// role rank. The owner of an event always holds rank OWNER, with or
// without an explicit grant row; everyone else is ranked by their grant,
// or rank 0 when no grant exists. The decision is computed from current
// store state on every call and never cached, since grants can change
// between requests.
//
// A missing event fails with ErrForbidden, the same as a denied check, so
// the answer does not reveal whether the event exists.
func (s *Service) Authorize(ctx context.Context, eventID, userID int64, required store.Role) error {
	_, err := s.authorizeEvent(ctx, eventID, userID, required)
	return err
}

func (s *Service) authorizeEvent(ctx context.Context, eventID, userID int64, required store.Role) (*store.Event, error) {
	ev, err := s.store.Events.GetByID(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}

	if ev.OwnerID == userID {
		return ev, nil
	}

	granted, err := s.store.Permissions.Lookup(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}

	rank := 0
	if role, ok := granted.Get(); ok {
		rank = role.Rank()
	}
	if rank < required.Rank() {
		return nil, ErrForbidden
	}
	return ev, nil
}
