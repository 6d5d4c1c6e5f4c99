// Package db records conversation history in a local SQLite database.
// Only lifecycle metadata is kept; utterance text is never stored.
package db

import "time"

// Session is one conversation lifetime: a connect attempt to a session and
// everything until the user left or the conversation errored.
type Session struct {
	ID             string
	SessionID      string
	Role           string
	Endpoint       string
	StartedAt      time.Time
	EndedAt        *time.Time
	EndReason      string
	UtteranceCount int
}

// Active reports whether the lifetime has not been closed yet.
func (s Session) Active() bool {
	return s.EndedAt == nil
}
