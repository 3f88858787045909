package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store aggregates the repositories behind a single handle.
type Store struct {
	Users       UserRepository
	Events      EventRepository
	Permissions PermissionRepository
	Versions    VersionRepository

	health func(ctx context.Context) error
}

// New wires the PostgreSQL repository implementations with a shared
// connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Users:       &userRepo{pool: pool},
		Events:      &eventRepo{pool: pool},
		Permissions: &permissionRepo{pool: pool},
		Versions:    &versionRepo{pool: pool},
		health:      pool.Ping,
	}
}

// HealthCheck verifies that the backing database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.health(ctx)
}
