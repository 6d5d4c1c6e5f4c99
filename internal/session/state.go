package session

// ConnStatus is the coarse state of the session channel.
type ConnStatus int

const (
	ConnConnecting ConnStatus = iota
	ConnOpen
	ConnClosed
)

func (s ConnStatus) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}

// CloseReason records why a channel ended up closed.
type CloseReason string

const (
	CloseNone            CloseReason = ""
	CloseError           CloseReason = "error"
	CloseClientInitiated CloseReason = "clientInitiated"
	ClosePeerLeft        CloseReason = "peerLeft"
	CloseRemote          CloseReason = "remoteClosed"
)

// ConnectionState is the observable state of the session channel.
type ConnectionState struct {
	Status ConnStatus
	Reason CloseReason
}

func Connecting() ConnectionState { return ConnectionState{Status: ConnConnecting} }
func Open() ConnectionState       { return ConnectionState{Status: ConnOpen} }

// Closed returns a closed state with the given reason.
func Closed(reason CloseReason) ConnectionState {
	return ConnectionState{Status: ConnClosed, Reason: reason}
}

func (c ConnectionState) IsOpen() bool { return c.Status == ConnOpen }

func (c ConnectionState) String() string {
	if c.Status == ConnClosed && c.Reason != CloseNone {
		return c.Status.String() + "(" + string(c.Reason) + ")"
	}
	return c.Status.String()
}

// CaptureStatus is the coarse state of speech capture.
type CaptureStatus int

const (
	CaptureUnsupported CaptureStatus = iota
	CaptureIdle
	CaptureListening
	CaptureInterim
)

func (s CaptureStatus) String() string {
	switch s {
	case CaptureUnsupported:
		return "unsupported"
	case CaptureIdle:
		return "idle"
	case CaptureListening:
		return "listening"
	case CaptureInterim:
		return "interim"
	}
	return "unknown"
}

// CaptureState is the observable state of speech capture. Text is only set
// while Status is CaptureInterim.
type CaptureState struct {
	Status CaptureStatus
	Text   string
}

func Unsupported() CaptureState { return CaptureState{Status: CaptureUnsupported} }
func Idle() CaptureState        { return CaptureState{Status: CaptureIdle} }
func Listening() CaptureState   { return CaptureState{Status: CaptureListening} }

// Interim returns a listening state carrying a non-final transcript.
func Interim(text string) CaptureState {
	return CaptureState{Status: CaptureInterim, Text: text}
}

// Active reports whether capture is listening, with or without interim text.
func (c CaptureState) Active() bool {
	return c.Status == CaptureListening || c.Status == CaptureInterim
}

func (c CaptureState) String() string {
	return c.Status.String()
}
