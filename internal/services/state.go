package services

import (
	"sync"
	"sync/atomic"

	"rette/internal/core"
)

// RosterState holds the current roster snapshot. Readers never block;
// writers are serialized and always publish a whole new snapshot.
type RosterState struct {
	mu  sync.Mutex
	cur atomic.Pointer[core.Roster]
}

func NewRosterState() *RosterState {
	s := &RosterState{}
	s.cur.Store(core.EmptyRoster())
	return s
}

// Snapshot returns the current roster. The value is immutable.
func (s *RosterState) Snapshot() *core.Roster {
	return s.cur.Load()
}

// Replace publishes r as the current roster.
func (s *RosterState) Replace(r *core.Roster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Store(r)
}

// Update derives the next snapshot from the current one under the writer
// lock and publishes it.
func (s *RosterState) Update(fn func(*core.Roster) *core.Roster) *core.Roster {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.cur.Load())
	s.cur.Store(next)
	return next
}
