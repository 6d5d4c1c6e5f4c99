package app

import (
	"sync/atomic"
	"time"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/session"
)

// Snapshot is an immutable copy of the conversation state, safe to read from
// other goroutines.
type Snapshot struct {
	SessionID  string
	Role       session.Role
	Phase      Phase
	Connection session.ConnectionState
	Capture    session.CaptureState
	Error      string
	Utterances []session.Utterance
	UpdatedAt  time.Time
}

// SnapshotStore holds the latest published Snapshot.
type SnapshotStore struct {
	v atomic.Pointer[Snapshot]
}

func (s *SnapshotStore) store(snap Snapshot) {
	s.v.Store(&snap)
}

// Load returns the latest snapshot, or the zero value before the first
// publish.
func (s *SnapshotStore) Load() Snapshot {
	if p := s.v.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}
