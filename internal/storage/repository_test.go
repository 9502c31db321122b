package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"index-anomaly-alerts/internal/config"
)

// newTestPostgresStore needs a disposable database; set INDEXWATCH_TEST_DATABASE_DSN to run.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("INDEXWATCH_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("INDEXWATCH_TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	key := "test:" + t.Name()
	store := NewPostgresStore(pool, key, 0x7465737400+time.Now().UnixNano()%1000)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		t.Fatalf("schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM window_checkpoints WHERE store_key = $1`, key)
		store.Close()
	})
	return store
}

func TestPostgresStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgresStore(t)

	if env, err := store.Load(ctx); env != nil || err != nil {
		t.Fatalf("missing row should load as (nil, nil), got (%v, %v)", env, err)
	}

	ts := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	if err := store.Save(ctx, sampleEnvelope(ts)); err != nil {
		t.Fatalf("save: %v", err)
	}
	next := NewEnvelope(ts.Add(5 * time.Minute))
	next.Put(sampleEnvelope(ts).Checkpoints["sh000001"])
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	env, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !env.Timestamp.Equal(next.Timestamp) {
		t.Fatalf("timestamp = %s, want %s", env.Timestamp, next.Timestamp)
	}
	if cp := env.Checkpoint("sh000001"); cp == nil || cp.PeriodHigh != 3018 || !cp.AlertedLargeChange {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}
}

func TestPostgresStoreCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgresStore(t)

	_, err := store.pool.Exec(ctx, `INSERT INTO window_checkpoints (store_key, written_at, checkpoints) VALUES ($1, now(), '[1,2]'::jsonb)`, store.key)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestPostgresStoreAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	store := newTestPostgresStore(t)

	unlock, ok, err := store.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.TryLock(ctx); err != nil || ok {
		t.Fatalf("second session must not get the lock: ok=%v err=%v", ok, err)
	}
	unlock()

	unlock, ok, err = store.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("relock: ok=%v err=%v", ok, err)
	}
	unlock()
}

func TestPostgresStoreZeroLockKey(t *testing.T) {
	store := NewPostgresStore(nil, "k", 0)
	unlock, ok, err := store.TryLock(context.Background())
	if err != nil || !ok || unlock == nil {
		t.Fatalf("zero key should disable locking: ok=%v err=%v", ok, err)
	}
	unlock()
}
