// Package host sequences calls into the engine kernel, owns the token
// ledger the kernel never touches, and exposes the admin surface (crank
// scheduling, snapshotting) a deployment needs around the accounting
// kernel itself.
package host

import (
	"sync"

	"perpkernel/engine"
)

// Session serializes every call into a single held Engine, matching the
// kernel's single-threaded design: Engine itself takes no locks and
// expects exactly one caller at a time. The engine's own atomic() helper
// guarantees per-call rollback on error; Session's lock only prevents two
// goroutines from interleaving calls into the same instance.
type Session struct {
	mu  sync.Mutex
	eng *engine.Engine
}

func NewSession(eng *engine.Engine) *Session {
	return &Session{eng: eng}
}

// Do runs fn against the held engine under the session's lock.
func (s *Session) Do(fn func(*engine.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.eng)
}

// Snapshot takes a consistent point-in-time snapshot of the held engine.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Snapshot()
}
