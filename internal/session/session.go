// Package session holds the conversation-side data model: who this client is
// in a session, the utterances exchanged, and the observable connection and
// capture states.
package session

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies a party in a two-party session.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Valid reports whether r is one of the two session roles.
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleGuest
}

// Peer returns the role of the other party.
func (r Role) Peer() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// ErrNoSessionID is returned when a session is created without an id.
var ErrNoSessionID = errors.New("no session ID provided")

// Session is the immutable addressing context for one conversation.
type Session struct {
	ID   string
	Role Role
}

// New validates and builds a Session.
func New(id string, role Role) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, ErrNoSessionID
	}
	if !role.Valid() {
		return Session{}, fmt.Errorf("invalid role %q", role)
	}
	return Session{ID: id, Role: role}, nil
}

// LanguageTag reduces a BCP-47 locale such as "de-DE" to its primary
// subtag ("de"), lowercased. The outbound wire format carries the short form.
func LanguageTag(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}
