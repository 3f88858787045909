package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/mo"
)

// NewMemory returns a Store backed by process memory. It honors the same
// contracts as the PostgreSQL driver, including per-event serialization of
// mutations, and is used by the test suite and the "memory" driver for
// local runs.
func NewMemory() *Store {
	b := &memoryBackend{
		users:        make(map[int64]*User),
		usersByName:  make(map[string]int64),
		usersByEmail: make(map[string]int64),
		events:       make(map[int64]*Event),
		perms:        make(map[int64]map[int64]*EventPermission),
		versions:     make(map[int64][]EventVersion),
		eventLocks:   make(map[int64]*sync.Mutex),
	}
	return &Store{
		Users:       &memUserRepo{b},
		Events:      &memEventRepo{b},
		Permissions: &memPermissionRepo{b},
		Versions:    &memVersionRepo{b},
		health:      func(context.Context) error { return nil },
	}
}

type memoryBackend struct {
	mu           sync.RWMutex
	users        map[int64]*User
	usersByName  map[string]int64
	usersByEmail map[string]int64
	events       map[int64]*Event
	perms        map[int64]map[int64]*EventPermission
	versions     map[int64][]EventVersion

	// eventLocks serializes mutations per event. mu only guards map
	// structure; it is never held across a whole read-modify-write.
	eventLocks map[int64]*sync.Mutex

	nextUser    int64
	nextEvent   int64
	nextPerm    int64
	nextVersion int64
}

func (b *memoryBackend) eventLock(id int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.eventLocks[id]
	if !ok {
		l = &sync.Mutex{}
		b.eventLocks[id] = l
	}
	return l
}

// normalizeSnapshot round-trips the snapshot through JSON so both store
// drivers hand identical value shapes (float64 numbers, map[string]any
// nesting) to the diff engine.
func normalizeSnapshot(snapshot map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return out, nil
}

func copyEvent(ev *Event) *Event {
	out := *ev
	if ev.Location != nil {
		loc := *ev.Location
		out.Location = &loc
	}
	if ev.RecurrencePattern != nil {
		pattern := make(map[string]any, len(ev.RecurrencePattern))
		for k, v := range ev.RecurrencePattern {
			pattern[k] = v
		}
		out.RecurrencePattern = pattern
	}
	return &out
}

type memUserRepo struct {
	b *memoryBackend
}

func (r *memUserRepo) Create(_ context.Context, user User) (*User, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if _, taken := r.b.usersByEmail[user.Email]; taken {
		return nil, fmt.Errorf("%w: user", ErrDuplicate)
	}
	if _, taken := r.b.usersByName[user.Username]; taken {
		return nil, fmt.Errorf("%w: user", ErrDuplicate)
	}
	r.b.nextUser++
	user.ID = r.b.nextUser
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := user
	r.b.users[user.ID] = &stored
	r.b.usersByEmail[user.Email] = user.ID
	r.b.usersByName[user.Username] = user.ID
	return &user, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (*User, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	u, ok := r.b.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	r.b.mu.RLock()
	id, ok := r.b.usersByName[username]
	r.b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	r.b.mu.RLock()
	id, ok := r.b.usersByEmail[email]
	r.b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

type memEventRepo struct {
	b *memoryBackend
}

func (r *memEventRepo) GetByID(_ context.Context, id int64) (*Event, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	ev, ok := r.b.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(ev), nil
}

func (r *memEventRepo) ListForUser(_ context.Context, userID int64) ([]Event, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	var events []Event
	for _, ev := range r.b.events {
		if ev.OwnerID == userID {
			events = append(events, *copyEvent(ev))
			continue
		}
		if perm, ok := r.b.perms[ev.ID][userID]; ok && perm != nil {
			events = append(events, *copyEvent(ev))
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (r *memEventRepo) CreateWithSnapshot(_ context.Context, ev Event, snapshot map[string]any, actorID int64) (*Event, *EventVersion, error) {
	data, err := normalizeSnapshot(snapshot)
	if err != nil {
		return nil, nil, err
	}
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	r.b.nextEvent++
	ev.ID = r.b.nextEvent
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	r.b.events[ev.ID] = copyEvent(&ev)

	r.b.nextVersion++
	version := EventVersion{
		ID:            r.b.nextVersion,
		EventID:       ev.ID,
		VersionNumber: 1,
		Data:          data,
		CreatedBy:     actorID,
		CreatedAt:     now,
	}
	r.b.versions[ev.ID] = []EventVersion{version}
	return &ev, &version, nil
}

func (r *memEventRepo) UpdateWithSnapshot(_ context.Context, ev Event, snapshot map[string]any, actorID int64) (*Event, *EventVersion, error) {
	data, err := normalizeSnapshot(snapshot)
	if err != nil {
		return nil, nil, err
	}

	// The per-event mutex serializes the read-modify-write; mu is only
	// taken briefly for map access, so writers to other events proceed.
	lock := r.b.eventLock(ev.ID)
	lock.Lock()
	defer lock.Unlock()

	r.b.mu.RLock()
	current, ok := r.b.events[ev.ID]
	r.b.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}

	ev.OwnerID = current.OwnerID
	ev.CreatedAt = current.CreatedAt
	ev.UpdatedAt = time.Now().UTC()

	r.b.mu.Lock()
	r.b.events[ev.ID] = copyEvent(&ev)
	r.b.nextVersion++
	version := EventVersion{
		ID:            r.b.nextVersion,
		EventID:       ev.ID,
		VersionNumber: int64(len(r.b.versions[ev.ID])) + 1,
		Data:          data,
		CreatedBy:     actorID,
		CreatedAt:     ev.UpdatedAt,
	}
	r.b.versions[ev.ID] = append(r.b.versions[ev.ID], version)
	r.b.mu.Unlock()
	return &ev, &version, nil
}

func (r *memEventRepo) Delete(_ context.Context, id int64) error {
	lock := r.b.eventLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if _, ok := r.b.events[id]; !ok {
		return ErrNotFound
	}
	delete(r.b.events, id)
	delete(r.b.perms, id)
	delete(r.b.versions, id)
	return nil
}

type memPermissionRepo struct {
	b *memoryBackend
}

func (r *memPermissionRepo) Upsert(_ context.Context, perm EventPermission) (*EventPermission, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	byUser, ok := r.b.perms[perm.EventID]
	if !ok {
		byUser = make(map[int64]*EventPermission)
		r.b.perms[perm.EventID] = byUser
	}
	if existing, ok := byUser[perm.UserID]; ok {
		existing.Role = perm.Role
		out := *existing
		return &out, nil
	}
	r.b.nextPerm++
	perm.ID = r.b.nextPerm
	stored := perm
	byUser[perm.UserID] = &stored
	return &perm, nil
}

func (r *memPermissionRepo) Lookup(_ context.Context, eventID, userID int64) (mo.Option[Role], error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	if perm, ok := r.b.perms[eventID][userID]; ok {
		return mo.Some(perm.Role), nil
	}
	return mo.None[Role](), nil
}

func (r *memPermissionRepo) ListForEvent(_ context.Context, eventID int64) ([]EventPermission, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	var perms []EventPermission
	for _, p := range r.b.perms[eventID] {
		perms = append(perms, *p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].UserID < perms[j].UserID })
	return perms, nil
}

type memVersionRepo struct {
	b *memoryBackend
}

func (r *memVersionRepo) History(_ context.Context, eventID int64) ([]EventVersion, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	stored := r.b.versions[eventID]
	out := make([]EventVersion, len(stored))
	// Stored ascending; history reads newest first.
	for i, v := range stored {
		out[len(stored)-1-i] = v
	}
	return out, nil
}

func (r *memVersionRepo) Get(_ context.Context, eventID, versionNumber int64) (*EventVersion, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	for _, v := range r.b.versions[eventID] {
		if v.VersionNumber == versionNumber {
			out := v
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
