package storage

import (
	"context"
	"sync"

	"index-anomaly-alerts/internal/detector"
)

// MemoryStore is an in-process store used by simulations and tests.
type MemoryStore struct {
	mu     sync.Mutex
	env    *Envelope
	locked bool

	// LoadErr and SaveErr, when set, are returned instead of touching state.
	LoadErr error
	SaveErr error
	Saves   int
}

// NewMemoryStore returns a store primed with env, which may be nil.
func NewMemoryStore(env *Envelope) *MemoryStore {
	s := &MemoryStore{}
	if env != nil {
		c := cloneEnvelope(*env)
		s.env = &c
	}
	return s
}

// Load returns a copy of the stored envelope.
func (s *MemoryStore) Load(context.Context) (*Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.env == nil {
		return nil, nil
	}
	c := cloneEnvelope(*s.env)
	return &c, nil
}

// Save replaces the stored envelope.
func (s *MemoryStore) Save(_ context.Context, env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	c := cloneEnvelope(env)
	s.env = &c
	s.Saves++
	return nil
}

// TryLock is a non-reentrant in-process mutex.
func (s *MemoryStore) TryLock(context.Context) (func(), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, false, nil
	}
	s.locked = true
	return func() {
		s.mu.Lock()
		s.locked = false
		s.mu.Unlock()
	}, true, nil
}

func cloneEnvelope(env Envelope) Envelope {
	out := Envelope{Timestamp: env.Timestamp, Checkpoints: make(map[string]detector.Checkpoint, len(env.Checkpoints))}
	for code, cp := range env.Checkpoints {
		out.Checkpoints[code] = cp
	}
	return out
}
