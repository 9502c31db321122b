package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const defaultLockStaleAfter = 2 * time.Minute

// FileStore keeps the envelope in a JSON file. Writes go through a temp file
// and rename so readers never observe a partial record.
type FileStore struct {
	path       string
	staleAfter time.Duration
}

// NewFileStore returns a store backed by path. Lock files older than
// lockStaleAfter are considered abandoned.
func NewFileStore(path string, lockStaleAfter time.Duration) *FileStore {
	if lockStaleAfter <= 0 {
		lockStaleAfter = defaultLockStaleAfter
	}
	return &FileStore{path: path, staleAfter: lockStaleAfter}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file.
func (s *FileStore) Load(_ context.Context) (*Envelope, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &env, nil
}

// Save replaces the state file atomically.
func (s *FileStore) Save(_ context.Context, env Envelope) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// TryLock creates <path>.lock exclusively. An existing lock older than the
// stale limit is removed and the acquisition retried once.
func (s *FileStore) TryLock(_ context.Context) (func(), bool, error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, false, fmt.Errorf("create lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, false, fmt.Errorf("create lock file: %w", err)
		}

		info, statErr := os.Stat(lockPath)
		if statErr != nil {
			if errors.Is(statErr, fs.ErrNotExist) {
				continue
			}
			return nil, false, fmt.Errorf("stat lock file: %w", statErr)
		}
		if time.Since(info.ModTime()) < s.staleAfter {
			return nil, false, nil
		}
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return nil, false, nil
}
