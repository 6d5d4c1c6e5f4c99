package capture

// ErrorKind is the normalized capture error taxonomy.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrPermissionDenied
	ErrNoSpeech
	ErrAborted
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPermissionDenied:
		return "permissionDenied"
	case ErrNoSpeech:
		return "noSpeechTimeout"
	case ErrAborted:
		return "aborted"
	}
	return "unknown"
}

// Fatal reports whether the error ends capture for the session.
func (k ErrorKind) Fatal() bool {
	return k == ErrPermissionDenied
}

// Classify maps an engine error code to an ErrorKind.
func Classify(code string) ErrorKind {
	switch code {
	case "not-allowed", "service-not-allowed", "audio-capture":
		return ErrPermissionDenied
	case "no-speech":
		return ErrNoSpeech
	case "aborted":
		return ErrAborted
	}
	return ErrUnknown
}
