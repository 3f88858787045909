package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/neofi/eventledger/internal/store"
)

// flakyEventRepo wraps a real event repository and fails the first
// `conflicts` snapshot appends with ErrConflict, as a competing writer
// taking the version number first would.
type flakyEventRepo struct {
	store.EventRepository

	mu        sync.Mutex
	conflicts int
	attempts  int

	// vanishOnConflict simulates the event being deleted while the
	// writer backs off: reads after a conflict find nothing.
	vanishOnConflict bool
	vanish           bool
}

func (r *flakyEventRepo) UpdateWithSnapshot(ctx context.Context, ev store.Event, snapshot map[string]any, actorID int64) (*store.Event, *store.EventVersion, error) {
	r.mu.Lock()
	r.attempts++
	fail := r.conflicts > 0
	if fail {
		r.conflicts--
		if r.vanishOnConflict {
			r.vanish = true
		}
	}
	r.mu.Unlock()
	if fail {
		return nil, nil, store.ErrConflict
	}
	return r.EventRepository.UpdateWithSnapshot(ctx, ev, snapshot, actorID)
}

func (r *flakyEventRepo) GetByID(ctx context.Context, id int64) (*store.Event, error) {
	r.mu.Lock()
	gone := r.vanish
	r.mu.Unlock()
	if gone {
		return nil, store.ErrNotFound
	}
	return r.EventRepository.GetByID(ctx, id)
}

func newFlakyService(t *testing.T) (*Service, *store.Store, *flakyEventRepo) {
	t.Helper()
	st := store.NewMemory()
	flaky := &flakyEventRepo{EventRepository: st.Events}
	st.Events = flaky
	return NewService(st), st, flaky
}

func TestUpdateEventRetriesThroughConflicts(t *testing.T) {
	svc, st, flaky := newFlakyService(t)
	owner := createTestUser(t, st, "owner")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	flaky.conflicts = 2
	title := "Planning v2"
	updated, err := svc.UpdateEvent(context.Background(), ev.ID, owner.ID, EventPatch{Title: &title})
	if err != nil {
		t.Fatalf("update through conflicts: %v", err)
	}
	if updated.Title != title {
		t.Errorf("expected title %q, got %q", title, updated.Title)
	}
	if flaky.attempts != 3 {
		t.Errorf("expected 3 attempts (2 conflicts + success), got %d", flaky.attempts)
	}

	history, err := svc.ListHistory(context.Background(), ev.ID, owner.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 || history[0].VersionNumber != 2 {
		t.Errorf("expected versions [2 1] after one successful update, got %+v", history)
	}
}

func TestUpdateEventConflictRetryExhaustion(t *testing.T) {
	svc, st, flaky := newFlakyService(t)
	owner := createTestUser(t, st, "owner")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	flaky.conflicts = conflictRetries + 10
	title := "never lands"
	_, err := svc.UpdateEvent(context.Background(), ev.ID, owner.ID, EventPatch{Title: &title})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausted retries, got %v", err)
	}
	if flaky.attempts != conflictRetries+1 {
		t.Errorf("expected %d attempts, got %d", conflictRetries+1, flaky.attempts)
	}

	history, err := svc.ListHistory(context.Background(), ev.ID, owner.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("no snapshot may be appended by a failed update, got %d versions", len(history))
	}
}

func TestUpdateEventDeletedBetweenRetries(t *testing.T) {
	svc, st, flaky := newFlakyService(t)
	owner := createTestUser(t, st, "owner")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	// First attempt conflicts; the re-read then finds the event gone.
	flaky.conflicts = 1
	flaky.vanishOnConflict = true
	title := "too late"
	_, err := svc.UpdateEvent(context.Background(), ev.ID, owner.ID, EventPatch{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when the event vanishes mid-retry, got %v", err)
	}
}
