package app

import "github.com/ChristianLang184/whatsword-guest-frontend/internal/channel"

// ConnectedMsg is sent when the session channel opened.
type ConnectedMsg struct{}

// ConnectFailedMsg is sent when the single connection attempt failed.
type ConnectFailedMsg struct {
	Err error
}

// EnvelopeMsg wraps an inbound envelope from the session channel.
type EnvelopeMsg struct {
	Envelope channel.Inbound
}

// ChannelClosedMsg is sent when reading from the channel failed, whether the
// service closed it or the transport broke.
type ChannelClosedMsg struct {
	Err error
}

// ToggleListeningMsg flips speech capture on or off.
type ToggleListeningMsg struct{}

// LeaveMsg ends the conversation. With Restart set the caller is expected to
// start a fresh conversation for the same session.
type LeaveMsg struct {
	Restart bool
}

// ClearNoticeMsg clears a transient notice after a timeout.
type ClearNoticeMsg struct {
	seq int
}
