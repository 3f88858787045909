package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neofi/eventledger/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewService(st), st
}

func createTestUser(t *testing.T, st *store.Store, name string) *store.User {
	t.Helper()
	user, err := st.Users.Create(context.Background(), store.User{
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "x",
		Role:         store.RoleViewer,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return user
}

func createTestEvent(t *testing.T, svc *Service, ownerID int64, title string) *store.Event {
	t.Helper()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ev, err := svc.CreateEvent(context.Background(), ownerID, EventInput{
		Title:       title,
		Description: "test event",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func TestOwnerAlwaysAuthorizedWithoutGrantRow(t *testing.T) {
	svc, st := newTestService(t)
	owner := createTestUser(t, st, "owner")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	// No explicit grant rows exist for the owner.
	perms, err := st.Permissions.ListForEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("list permissions: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected no explicit grants, got %d", len(perms))
	}

	for _, required := range []store.Role{store.RoleViewer, store.RoleEditor, store.RoleOwner} {
		if err := svc.Authorize(context.Background(), ev.ID, owner.ID, required); err != nil {
			t.Errorf("owner denied at rank %s: %v", required, err)
		}
	}
}

func TestRoleHierarchy(t *testing.T) {
	svc, st := newTestService(t)
	owner := createTestUser(t, st, "owner")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	cases := []struct {
		granted store.Role
		allowed []store.Role
		denied  []store.Role
	}{
		{store.RoleViewer, []store.Role{store.RoleViewer}, []store.Role{store.RoleEditor, store.RoleOwner}},
		{store.RoleEditor, []store.Role{store.RoleViewer, store.RoleEditor}, []store.Role{store.RoleOwner}},
		{store.RoleOwner, []store.Role{store.RoleViewer, store.RoleEditor, store.RoleOwner}, nil},
	}
	for _, tc := range cases {
		user := createTestUser(t, st, "user_"+string(tc.granted))
		if _, err := svc.GrantPermission(context.Background(), ev.ID, owner.ID, user.ID, string(tc.granted)); err != nil {
			t.Fatalf("grant %s: %v", tc.granted, err)
		}
		for _, required := range tc.allowed {
			if err := svc.Authorize(context.Background(), ev.ID, user.ID, required); err != nil {
				t.Errorf("%s should satisfy required rank %s: %v", tc.granted, required, err)
			}
		}
		for _, required := range tc.denied {
			if err := svc.Authorize(context.Background(), ev.ID, user.ID, required); !errors.Is(err, ErrForbidden) {
				t.Errorf("%s should be denied at rank %s, got %v", tc.granted, required, err)
			}
		}
	}
}

func TestNoGrantMeansNoAccess(t *testing.T) {
	svc, st := newTestService(t)
	owner := createTestUser(t, st, "owner")
	stranger := createTestUser(t, st, "stranger")
	ev := createTestEvent(t, svc, owner.ID, "Private")

	if err := svc.Authorize(context.Background(), ev.ID, stranger.ID, store.RoleViewer); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for stranger, got %v", err)
	}
}

func TestMissingEventIsForbiddenNotNotFound(t *testing.T) {
	svc, st := newTestService(t)
	user := createTestUser(t, st, "user")

	// The check must not reveal whether the event exists.
	err := svc.Authorize(context.Background(), 9999, user.ID, store.RoleViewer)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for missing event, got %v", err)
	}
}

func TestAuthorizeSeesGrantChanges(t *testing.T) {
	svc, st := newTestService(t)
	owner := createTestUser(t, st, "owner")
	user := createTestUser(t, st, "user")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	if _, err := svc.GrantPermission(context.Background(), ev.ID, owner.ID, user.ID, "editor"); err != nil {
		t.Fatalf("grant editor: %v", err)
	}
	if err := svc.Authorize(context.Background(), ev.ID, user.ID, store.RoleEditor); err != nil {
		t.Fatalf("editor should pass: %v", err)
	}

	// Downgrade between requests must take effect immediately.
	if _, err := svc.GrantPermission(context.Background(), ev.ID, owner.ID, user.ID, "viewer"); err != nil {
		t.Fatalf("downgrade to viewer: %v", err)
	}
	if err := svc.Authorize(context.Background(), ev.ID, user.ID, store.RoleEditor); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden after downgrade, got %v", err)
	}
}

func TestGrantInvalidRole(t *testing.T) {
	svc, st := newTestService(t)
	owner := createTestUser(t, st, "owner")
	user := createTestUser(t, st, "user")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	for _, role := range []string{"admin", "OWNER", "", "super"} {
		_, err := svc.GrantPermission(context.Background(), ev.ID, owner.ID, user.ID, role)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("role %q: expected ErrValidation, got %v", role, err)
		}
	}
}

func TestGrantRequiresOwner(t *testing.T) {
	svc, st := newTestService(t)
	owner := createTestUser(t, st, "owner")
	editor := createTestUser(t, st, "editor")
	other := createTestUser(t, st, "other")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	if _, err := svc.GrantPermission(context.Background(), ev.ID, owner.ID, editor.ID, "editor"); err != nil {
		t.Fatalf("owner grant: %v", err)
	}

	// An editor cannot share the event.
	if _, err := svc.GrantPermission(context.Background(), ev.ID, editor.ID, other.ID, "viewer"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for editor sharing, got %v", err)
	}
}

func TestGrantUpsertKeepsSingleRow(t *testing.T) {
	svc, st := newTestService(t)
	owner := createTestUser(t, st, "owner")
	user := createTestUser(t, st, "user")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	for i, role := range []string{"viewer", "editor", "viewer", "owner"} {
		if _, err := svc.GrantPermission(context.Background(), ev.ID, owner.ID, user.ID, role); err != nil {
			t.Fatalf("grant #%d (%s): %v", i, role, err)
		}
	}

	perms, err := st.Permissions.ListForEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("list permissions: %v", err)
	}
	if len(perms) != 1 {
		t.Fatalf("expected exactly one grant row, got %d", len(perms))
	}
	if perms[0].Role != store.RoleOwner {
		t.Errorf("expected final role owner, got %s", perms[0].Role)
	}
}

func TestGrantUnknownTargetUser(t *testing.T) {
	svc, st := newTestService(t)
	owner := createTestUser(t, st, "owner")
	ev := createTestEvent(t, svc, owner.ID, "Planning")

	_, err := svc.GrantPermission(context.Background(), ev.ID, owner.ID, 404404, "viewer")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown target user, got %v", err)
	}
}

func TestRoleRanks(t *testing.T) {
	if store.RoleOwner.Rank() != 3 || store.RoleEditor.Rank() != 2 || store.RoleViewer.Rank() != 1 {
		t.Errorf("unexpected ranks: owner=%d editor=%d viewer=%d",
			store.RoleOwner.Rank(), store.RoleEditor.Rank(), store.RoleViewer.Rank())
	}
	if store.Role("nonsense").Rank() != 0 {
		t.Errorf("unknown role must rank 0, got %d", store.Role("nonsense").Rank())
	}
}
