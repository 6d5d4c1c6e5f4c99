// Package capture drives a speech recognition engine on behalf of the
// conversation. It turns the engine's raw lifecycle into a small set of
// normalized events, applies restart policies, and guarantees the engine and
// microphone are released exactly once.
package capture

import (
	"context"
	"errors"
)

// ErrAlreadyStarted is returned by Recognizer.Start while a run is active.
var ErrAlreadyStarted = errors.New("recognizer already started")

// ErrUnsupported means no recognition engine is available on this host.
var ErrUnsupported = errors.New("speech recognition is not supported")

// Config is the recognition configuration a Recognizer runs with.
type Config struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// EngineEventKind enumerates raw engine callbacks.
type EngineEventKind int

const (
	EngineStart EngineEventKind = iota
	EngineEnd
	EngineResult
	EngineError
)

// Result is one recognition hypothesis segment.
type Result struct {
	Transcript string
	Final      bool
}

// EngineEvent is a raw callback from a Recognizer.
type EngineEvent struct {
	Kind EngineEventKind
	// Results holds the segments that changed since the previous result
	// event. Only set for EngineResult.
	Results []Result
	// Code is the engine's error code, e.g. "no-speech". Only set for
	// EngineError.
	Code string
}

// Recognizer is a speech recognition engine.
type Recognizer interface {
	// Start begins a recognition run without blocking. It returns
	// ErrAlreadyStarted if a run is active.
	Start() error
	// Stop ends the current run gracefully. No-op when idle.
	Stop()
	// Events delivers engine callbacks in order.
	Events() <-chan EngineEvent
}

// AudioStream is an acquired microphone stream.
type AudioStream interface {
	Release()
}

// Microphone grants access to an audio input device.
type Microphone interface {
	// Request acquires the device, prompting for permission if the platform
	// requires it.
	Request(ctx context.Context) (AudioStream, error)
}
