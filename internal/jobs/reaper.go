package jobs

import (
	"context"
	"log"
)

// SessionStore is the slice of the session manager the reaper needs.
type SessionStore interface {
	ReapIdle() int
	Count() int
}

// SessionReaper removes sessions that have sat idle past their TTL. All
// session state lives in process memory, so without the reaper abandoned
// conversations would hold their indexes forever.
type SessionReaper struct {
	sessions SessionStore
}

// NewSessionReaper creates a reaper over the given session store.
func NewSessionReaper(sessions SessionStore) *SessionReaper {
	return &SessionReaper{sessions: sessions}
}

// Run sweeps idle sessions once.
func (r *SessionReaper) Run(_ context.Context) error {
	removed := r.sessions.ReapIdle()
	if removed > 0 {
		log.Printf("Reaped %d idle session(s), %d remaining", removed, r.sessions.Count())
	}
	return nil
}
