package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"index-anomaly-alerts/internal/config"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrCorrupt wraps a persisted record that could not be decoded.
	ErrCorrupt = errors.New("storage: corrupt checkpoint record")
)

// Store persists the checkpoint envelope with whole-record semantics.
// Load returns (nil, nil) when nothing has been written yet.
type Store interface {
	Load(ctx context.Context) (*Envelope, error)
	Save(ctx context.Context, env Envelope) error
}

// Locker provides mutual exclusion for overlapping cycles.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), acquired bool, err error)
}

// Closer is implemented by stores holding network resources.
type Closer interface {
	Close()
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Open builds the store selected by storage.driver. The caller owns the
// returned store and should Close it when it implements Closer.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverFile, "":
		return NewFileStore(cfg.Storage.Path, cfg.Storage.LockStaleAfter), nil
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(pool, cfg.Storage.Key, cfg.Scheduler.AdvisoryLockKey)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverRedis:
		return NewRedisStore(NewRedisClient(cfg.Redis), cfg.Storage.Key, cfg.Redis.TTL, cfg.Redis.LockTTL), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
