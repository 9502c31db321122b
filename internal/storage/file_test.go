package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"index-anomaly-alerts/internal/detector"
)

func sampleEnvelope(ts time.Time) Envelope {
	env := NewEnvelope(ts)
	env.Put(detector.Checkpoint{
		Code:               "sh000001",
		Name:               "上证指数",
		Price:              3015,
		Amount:             4.2e11,
		PeriodHigh:         3018,
		PeriodLow:          2997,
		WindowStartPrice:   3000,
		WindowStartTime:    ts.Add(-5 * time.Minute),
		WindowStartAmount:  4.1e11,
		PrevWindowVolume:   9e9,
		AlertedLargeChange: true,
		TradingDay:         "2024-03-04",
	})
	return env
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), 0)
	env, err := store.Load(context.Background())
	if err != nil || env != nil {
		t.Fatalf("missing file should load as (nil, nil), got (%v, %v)", env, err)
	}
}

func TestFileStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFileStore(path, 0)
	ts := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)

	if err := store.Save(ctx, sampleEnvelope(ts)); err != nil {
		t.Fatalf("save: %v", err)
	}
	env, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !env.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %s", env.Timestamp)
	}
	cp := env.Checkpoint("sh000001")
	if cp == nil {
		t.Fatal("checkpoint missing after reload")
	}
	if cp.PrevWindowVolume != 9e9 || !cp.AlertedLargeChange || cp.TradingDay != "2024-03-04" {
		t.Fatalf("checkpoint did not survive the round trip: %+v", cp)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileStoreCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileStore(path, 0).Load(context.Background())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFileStoreLock(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), time.Minute)

	unlock, ok, err := store.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.TryLock(ctx); err != nil || ok {
		t.Fatalf("second lock should be refused: ok=%v err=%v", ok, err)
	}
	unlock()
	unlock2, ok, err := store.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("lock after release: ok=%v err=%v", ok, err)
	}
	unlock2()
}

func TestFileStoreReclaimsAbandonedLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	lockPath := path + ".lock"
	if err := os.WriteFile(lockPath, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	unlock, ok, err := NewFileStore(path, time.Minute).TryLock(context.Background())
	if err != nil || !ok {
		t.Fatalf("abandoned lock should be reclaimed: ok=%v err=%v", ok, err)
	}
	unlock()
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock file should be gone, stat err=%v", err)
	}
}
