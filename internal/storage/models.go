package storage

import (
	"time"

	"index-anomaly-alerts/internal/detector"
)

// Envelope is the whole persisted record: every checkpoint plus the time it
// was written. It is always read and written as a unit.
type Envelope struct {
	Timestamp   time.Time                      `json:"timestamp"`
	Checkpoints map[string]detector.Checkpoint `json:"checkpoints"`
}

// NewEnvelope returns an empty envelope stamped with ts.
func NewEnvelope(ts time.Time) Envelope {
	return Envelope{Timestamp: ts, Checkpoints: make(map[string]detector.Checkpoint)}
}

// Stale reports whether the envelope must be treated as absent at now.
func (e *Envelope) Stale(now time.Time, staleAfter time.Duration) bool {
	if e == nil || e.Timestamp.IsZero() {
		return true
	}
	return now.Sub(e.Timestamp) >= staleAfter
}

// Checkpoint returns a copy of the checkpoint for code, or nil when absent.
func (e *Envelope) Checkpoint(code string) *detector.Checkpoint {
	if e == nil {
		return nil
	}
	cp, ok := e.Checkpoints[code]
	if !ok {
		return nil
	}
	return &cp
}

// Put records cp under its code.
func (e *Envelope) Put(cp detector.Checkpoint) {
	if e.Checkpoints == nil {
		e.Checkpoints = make(map[string]detector.Checkpoint)
	}
	e.Checkpoints[cp.Code] = cp
}
