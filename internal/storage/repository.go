package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"index-anomaly-alerts/internal/detector"
)

const (
	createCheckpointTableSQL = `CREATE TABLE IF NOT EXISTS window_checkpoints (
        store_key   TEXT PRIMARY KEY,
        written_at  TIMESTAMPTZ NOT NULL,
        checkpoints JSONB NOT NULL,
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	loadEnvelopeSQL = `SELECT
        written_at,
        checkpoints
    FROM window_checkpoints
    WHERE store_key = $1;`

	upsertEnvelopeSQL = `INSERT INTO window_checkpoints (
        store_key,
        written_at,
        checkpoints
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (store_key) DO UPDATE
    SET
        written_at  = EXCLUDED.written_at,
        checkpoints = EXCLUDED.checkpoints,
        updated_at  = now();`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore keeps the envelope in a single JSONB row keyed by store key.
type PostgresStore struct {
	pool    *pgxpool.Pool
	key     string
	lockKey int64
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, key string, lockKey int64) *PostgresStore {
	return &PostgresStore{pool: pool, key: key, lockKey: lockKey}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the checkpoint table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createCheckpointTableSQL); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Load reads the envelope row.
func (s *PostgresStore) Load(ctx context.Context) (*Envelope, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var (
		writtenAt time.Time
		raw       []byte
	)
	if err := pool.QueryRow(ctx, loadEnvelopeSQL, s.key).Scan(&writtenAt, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load envelope: %w", err)
	}

	checkpoints := make(map[string]detector.Checkpoint)
	if err := json.Unmarshal(raw, &checkpoints); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &Envelope{Timestamp: writtenAt, Checkpoints: checkpoints}, nil
}

// Save overwrites the envelope row.
func (s *PostgresStore) Save(ctx context.Context, env Envelope) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(env.Checkpoints)
	if err != nil {
		return fmt.Errorf("encode checkpoints: %w", err)
	}
	if _, err := pool.Exec(ctx, upsertEnvelopeSQL, s.key, env.Timestamp, raw); err != nil {
		return fmt.Errorf("upsert envelope: %w", err)
	}
	return nil
}

// TryLock attempts to acquire a postgres advisory lock and returns a release func.
// A zero lock key disables locking.
func (s *PostgresStore) TryLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 {
		return func() {}, true, nil
	}
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, s.lockKey).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock also dies with the connection
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, s.lockKey)
		conn.Release()
	}
	return unlock, true, nil
}
