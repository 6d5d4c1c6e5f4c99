// Package channel provides the session channel: a single WebSocket to the
// session service carrying JSON envelopes in both directions.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/session"
)

// Envelope types.
const (
	TypeMessage     = "message"
	TypeTranslation = "translation"
	TypeHostLeft    = "host_left"
)

// TimestampFormat is ISO-8601 UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrMalformed is returned by Decode for payloads that are not envelopes.
var ErrMalformed = errors.New("malformed envelope")

// Outbound is sent by this client for each local final utterance.
type Outbound struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
}

// NewMessage builds a message envelope stamped with t.
func NewMessage(text, language string, t time.Time) Outbound {
	return Outbound{
		Type:      TypeMessage,
		Text:      text,
		Language:  language,
		Timestamp: t.UTC().Format(TimestampFormat),
	}
}

// Inbound is any envelope received from the session service. Fields that a
// given type does not use are left empty.
type Inbound struct {
	Type           string       `json:"type"`
	Sender         session.Role `json:"sender,omitempty"`
	Text           string       `json:"text,omitempty"`
	OriginalText   string       `json:"originalText,omitempty"`
	TranslatedText string       `json:"translatedText,omitempty"`
	Timestamp      string       `json:"timestamp,omitempty"`
}

// Utterance reports whether the envelope carries timeline content.
func (in Inbound) Utterance() bool {
	return in.Type == TypeMessage || in.Type == TypeTranslation
}

// Original returns originalText, falling back to text.
func (in Inbound) Original() string {
	if in.OriginalText != "" {
		return in.OriginalText
	}
	return in.Text
}

// CreatedAt parses the envelope timestamp, falling back to now when it is
// missing or unparseable.
func (in Inbound) CreatedAt(now time.Time) time.Time {
	if in.Timestamp == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339Nano, in.Timestamp)
	if err != nil {
		return now
	}
	return t
}

// Decode parses one inbound payload. Unknown types decode successfully and
// are left to the caller to ignore.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return in, nil
}

// Endpoint builds the channel URL for a session: base plus sessionId and
// role query parameters.
func Endpoint(base string, s session.Session) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("sessionId", s.ID)
	q.Set("role", string(s.Role))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
