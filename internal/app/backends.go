package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/larrabee/ceph/internal/audit"
	"github.com/larrabee/ceph/internal/platform/cache"
	"github.com/larrabee/ceph/internal/platform/db"
	"github.com/larrabee/ceph/internal/roles"
	"github.com/larrabee/ceph/internal/shared"
	"github.com/larrabee/ceph/internal/users"
)

// Backends holds the live PostgreSQL and Redis connections.
type Backends struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client

	logger *slog.Logger
}

// OpenBackends connects to PostgreSQL and Redis and applies pending migrations.
func OpenBackends(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backends, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: migrate: %w", err)
	}
	client, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Backends{Pool: pool, Redis: client, logger: logger}, nil
}

// Stores exposes the PostgreSQL repositories and the session store.
func (b *Backends) Stores() Stores {
	return Stores{
		Users:    users.NewRepository(b.Pool),
		Roles:    roles.NewRepository(b.Pool),
		Redis:    b.Redis,
		Audit:    shared.NewAuditLogger(b.Pool),
		AuditLog: audit.NewRepository(b.Pool),
	}
}

// Close releases every connection.
func (b *Backends) Close() {
	if err := b.Redis.Close(); err != nil && b.logger != nil {
		b.logger.Warn("redis close", slog.Any("error", err))
	}
	b.Pool.Close()
}
