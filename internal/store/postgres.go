package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// userRepo implements UserRepository.
type userRepo struct {
	pool *pgxpool.Pool
}

func (r *userRepo) Create(ctx context.Context, user User) (*User, error) {
	defer observeDB(ctx, "db.users.create")()
	const q = `INSERT INTO users (email, username, password_hash, role, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, user.Email, user.Username, user.PasswordHash, user.Role, user.IsActive).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: user", ErrDuplicate)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	defer observeDB(ctx, "db.users.get")()
	return r.getBy(ctx, "id=$1", id)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	defer observeDB(ctx, "db.users.get_by_username")()
	return r.getBy(ctx, "username=$1", username)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	defer observeDB(ctx, "db.users.get_by_email")()
	return r.getBy(ctx, "email=$1", email)
}

func (r *userRepo) getBy(ctx context.Context, cond string, arg any) (*User, error) {
	q := `SELECT id, email, username, password_hash, role, is_active, created_at, updated_at
FROM users WHERE ` + cond
	var u User
	err := r.pool.QueryRow(ctx, q, arg).
		Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// eventRepo implements EventRepository.
type eventRepo struct {
	pool *pgxpool.Pool
}

const eventColumns = `id, title, description, start_time, end_time, location,
is_recurring, recurrence_pattern, owner_id, created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var ev Event
	var pattern []byte
	err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
		&ev.Location, &ev.IsRecurring, &pattern, &ev.OwnerID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(pattern) > 0 {
		if err := json.Unmarshal(pattern, &ev.RecurrencePattern); err != nil {
			return nil, fmt.Errorf("decode recurrence pattern: %w", err)
		}
	}
	return &ev, nil
}

func marshalPattern(pattern map[string]any) ([]byte, error) {
	if pattern == nil {
		return nil, nil
	}
	return json.Marshal(pattern)
}

func (r *eventRepo) GetByID(ctx context.Context, id int64) (*Event, error) {
	defer observeDB(ctx, "db.events.get")()
	q := `SELECT ` + eventColumns + ` FROM events WHERE id=$1`
	ev, err := scanEvent(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (r *eventRepo) ListForUser(ctx context.Context, userID int64) ([]Event, error) {
	defer observeDB(ctx, "db.events.list")()
	q := `SELECT ` + eventColumns + ` FROM events
WHERE owner_id=$1
   OR id IN (SELECT event_id FROM event_permissions WHERE user_id=$1)
ORDER BY id`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (r *eventRepo) CreateWithSnapshot(ctx context.Context, ev Event, snapshot map[string]any, actorID int64) (*Event, *EventVersion, error) {
	defer observeDB(ctx, "db.events.create")()
	pattern, err := marshalPattern(ev.RecurrencePattern)
	if err != nil {
		return nil, nil, fmt.Errorf("encode recurrence pattern: %w", err)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin create event: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertEvent = `INSERT INTO events
(title, description, start_time, end_time, location, is_recurring, recurrence_pattern, owner_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, insertEvent,
		ev.Title, ev.Description, ev.StartTime, ev.EndTime, ev.Location,
		ev.IsRecurring, pattern, ev.OwnerID).
		Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert event: %w", err)
	}

	version := EventVersion{EventID: ev.ID, VersionNumber: 1, Data: snapshot, CreatedBy: actorID}
	const insertVersion = `INSERT INTO event_versions (event_id, version_number, data, created_by)
VALUES ($1, 1, $2, $3)
RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insertVersion, ev.ID, data, actorID).Scan(&version.ID, &version.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("insert initial snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit create event: %w", err)
	}
	return &ev, &version, nil
}

// UpdateWithSnapshot writes the new field values and appends the snapshot in
// one transaction. The UPDATE takes the event's row lock, so concurrent
// writers to the same event serialize there and the MAX+1 version assignment
// is race-free; the unique index on (event_id, version_number) backstops the
// invariant and surfaces any collision as ErrConflict.
func (r *eventRepo) UpdateWithSnapshot(ctx context.Context, ev Event, snapshot map[string]any, actorID int64) (*Event, *EventVersion, error) {
	defer observeDB(ctx, "db.events.update")()
	pattern, err := marshalPattern(ev.RecurrencePattern)
	if err != nil {
		return nil, nil, fmt.Errorf("encode recurrence pattern: %w", err)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin update event: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateEvent = `UPDATE events
SET title=$2, description=$3, start_time=$4, end_time=$5, location=$6,
    is_recurring=$7, recurrence_pattern=$8, updated_at=NOW()
WHERE id=$1
RETURNING created_at, updated_at`
	err = tx.QueryRow(ctx, updateEvent,
		ev.ID, ev.Title, ev.Description, ev.StartTime, ev.EndTime, ev.Location,
		ev.IsRecurring, pattern).
		Scan(&ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("update event: %w", err)
	}

	version := EventVersion{EventID: ev.ID, Data: snapshot, CreatedBy: actorID}
	const insertVersion = `INSERT INTO event_versions (event_id, version_number, data, created_by)
SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2, $3
FROM event_versions WHERE event_id=$1
RETURNING id, version_number, created_at`
	err = tx.QueryRow(ctx, insertVersion, ev.ID, data, actorID).
		Scan(&version.ID, &version.VersionNumber, &version.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrConflict
		}
		return nil, nil, fmt.Errorf("append snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit update event: %w", err)
	}
	return &ev, &version, nil
}

func (r *eventRepo) Delete(ctx context.Context, id int64) error {
	defer observeDB(ctx, "db.events.delete")()
	// Grants and version history go with the event via ON DELETE CASCADE.
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// permissionRepo implements PermissionRepository.
type permissionRepo struct {
	pool *pgxpool.Pool
}

func (r *permissionRepo) Upsert(ctx context.Context, perm EventPermission) (*EventPermission, error) {
	defer observeDB(ctx, "db.permissions.upsert")()
	const q = `INSERT INTO event_permissions (event_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, user_id) DO UPDATE SET role = EXCLUDED.role
RETURNING id`
	if err := r.pool.QueryRow(ctx, q, perm.EventID, perm.UserID, perm.Role).Scan(&perm.ID); err != nil {
		return nil, fmt.Errorf("upsert permission: %w", err)
	}
	return &perm, nil
}

func (r *permissionRepo) Lookup(ctx context.Context, eventID, userID int64) (mo.Option[Role], error) {
	defer observeDB(ctx, "db.permissions.lookup")()
	const q = `SELECT role FROM event_permissions WHERE event_id=$1 AND user_id=$2`
	var role Role
	err := r.pool.QueryRow(ctx, q, eventID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return mo.None[Role](), nil
	}
	if err != nil {
		return mo.None[Role](), fmt.Errorf("lookup permission: %w", err)
	}
	return mo.Some(role), nil
}

func (r *permissionRepo) ListForEvent(ctx context.Context, eventID int64) ([]EventPermission, error) {
	defer observeDB(ctx, "db.permissions.list")()
	const q = `SELECT id, event_id, user_id, role FROM event_permissions WHERE event_id=$1 ORDER BY user_id`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var perms []EventPermission
	for rows.Next() {
		var p EventPermission
		if err := rows.Scan(&p.ID, &p.EventID, &p.UserID, &p.Role); err != nil {
			return nil, fmt.Errorf("list permissions: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// versionRepo implements VersionRepository.
type versionRepo struct {
	pool *pgxpool.Pool
}

const versionColumns = `id, event_id, version_number, data, created_by, created_at`

func scanVersion(row pgx.Row) (*EventVersion, error) {
	var v EventVersion
	var data []byte
	if err := row.Scan(&v.ID, &v.EventID, &v.VersionNumber, &data, &v.CreatedBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &v.Data); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &v, nil
}

func (r *versionRepo) History(ctx context.Context, eventID int64) ([]EventVersion, error) {
	defer observeDB(ctx, "db.versions.history")()
	q := `SELECT ` + versionColumns + ` FROM event_versions
WHERE event_id=$1 ORDER BY version_number DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []EventVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

func (r *versionRepo) Get(ctx context.Context, eventID, versionNumber int64) (*EventVersion, error) {
	defer observeDB(ctx, "db.versions.get")()
	q := `SELECT ` + versionColumns + ` FROM event_versions
WHERE event_id=$1 AND version_number=$2`
	v, err := scanVersion(r.pool.QueryRow(ctx, q, eventID, versionNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}
