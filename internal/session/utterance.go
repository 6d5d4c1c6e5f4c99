package session

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Utterance is one finalized unit of speech in the conversation timeline.
type Utterance struct {
	ID             string
	Seq            uint64
	Sender         Role
	OriginalText   string
	TranslatedText string
	CreatedAt      time.Time
}

// Local reports whether the utterance was produced by this client.
func (u Utterance) Local(self Role) bool {
	return u.Sender == self
}

// IDSource hands out utterance identifiers. IDs are UUIDv7 (time ordered)
// paired with a per-source sequence number, so two utterances created in the
// same millisecond still get distinct, ordered identities.
type IDSource struct {
	seq atomic.Uint64
}

// Next returns a fresh id and sequence number.
func (s *IDSource) Next() (string, uint64) {
	n := s.seq.Add(1)
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString(), n
	}
	return id.String(), n
}

// Timeline is the append-only ordered list of utterances for one session.
// Entries are never reordered, edited or removed.
type Timeline struct {
	ids     IDSource
	entries []Utterance
}

// Append assigns identity to u and adds it at the end. It returns the stored
// utterance.
func (t *Timeline) Append(u Utterance) Utterance {
	u.ID, u.Seq = t.ids.Next()
	t.entries = append(t.entries, u)
	return u
}

// Len returns the number of utterances.
func (t *Timeline) Len() int {
	return len(t.entries)
}

// At returns the i-th utterance.
func (t *Timeline) At(i int) Utterance {
	return t.entries[i]
}

// Entries returns a copy of the timeline, oldest first.
func (t *Timeline) Entries() []Utterance {
	out := make([]Utterance, len(t.entries))
	copy(out, t.entries)
	return out
}

// View returns the current entries without copying. The slice is capped at
// its length, so later appends never show through it. Callers must not
// modify it.
func (t *Timeline) View() []Utterance {
	n := len(t.entries)
	return t.entries[:n:n]
}

// Last returns up to n most recent utterances, oldest first.
func (t *Timeline) Last(n int) []Utterance {
	if n <= 0 || n >= len(t.entries) {
		return t.Entries()
	}
	out := make([]Utterance, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}
