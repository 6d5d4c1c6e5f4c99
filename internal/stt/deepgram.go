// Package stt implements capture.Recognizer on top of a streaming
// speech-to-text WebSocket API speaking the Deepgram listen protocol.
package stt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/capture"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/log"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/session"
)

// DefaultURL is the hosted Deepgram streaming endpoint.
const DefaultURL = "wss://api.deepgram.com/v1/listen"

var errClosed = errors.New("recognizer closed")

// Source supplies 16-bit little-endian mono PCM.
type Source interface {
	Open(onData func(pcm []byte)) (capture.AudioStream, error)
}

// Config configures a Deepgram recognizer.
type Config struct {
	URL        string
	APIKey     string
	Model      string
	SampleRate int
	// NoSpeechTimeout ends a run with "no-speech" if nothing was heard.
	NoSpeechTimeout time.Duration
	// DrainTimeout bounds how long Stop waits for the last final result.
	DrainTimeout time.Duration
	Recognition  capture.Config
}

type listenResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (r listenResponse) transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
}

// Deepgram is a capture.Recognizer. Each Start opens one streaming session
// and one microphone stream; both are closed when the run ends.
type Deepgram struct {
	cfg    Config
	src    Source
	dialer *websocket.Dialer
	events chan capture.EngineEvent

	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	cur *run
}

type run struct {
	stopped  chan struct{}
	stopOnce sync.Once
}

func (r *run) stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}

// New returns a recognizer, or capture.ErrUnsupported when no API key is
// configured.
func New(cfg Config, src Source) (*Deepgram, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no speech-to-text API key", capture.ErrUnsupported)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: no audio source", capture.ErrUnsupported)
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.NoSpeechTimeout <= 0 {
		cfg.NoSpeechTimeout = 8 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 1500 * time.Millisecond
	}
	return &Deepgram{
		cfg:    cfg,
		src:    src,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: make(chan capture.EngineEvent, 32),
		done:   make(chan struct{}),
	}, nil
}

func (d *Deepgram) Events() <-chan capture.EngineEvent {
	return d.events
}

// Start begins a run in the background.
func (d *Deepgram) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.done:
		return errClosed
	default:
	}
	if d.cur != nil {
		return capture.ErrAlreadyStarted
	}
	r := &run{stopped: make(chan struct{})}
	d.cur = r
	go d.loop(r)
	return nil
}

// Stop asks the current run to finalize and end.
func (d *Deepgram) Stop() {
	d.mu.Lock()
	r := d.cur
	d.mu.Unlock()
	if r != nil {
		r.stop()
	}
}

// Close stops any run and stops delivering events.
func (d *Deepgram) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.Stop()
	})
}

func (d *Deepgram) emit(ev capture.EngineEvent) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

func (d *Deepgram) emitError(code string) {
	d.emit(capture.EngineEvent{Kind: capture.EngineError, Code: code})
}

func (d *Deepgram) emitResult(text string, final bool) {
	d.emit(capture.EngineEvent{
		Kind:    capture.EngineResult,
		Results: []capture.Result{{Transcript: text, Final: final}},
	})
}

func (d *Deepgram) endpoint() (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(d.cfg.Recognition.InterimResults))
	if lang := session.LanguageTag(d.cfg.Recognition.Language); lang != "" {
		q.Set("language", lang)
	}
	if d.cfg.Recognition.MaxAlternatives > 1 {
		q.Set("alternatives", strconv.Itoa(d.cfg.Recognition.MaxAlternatives))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Deepgram) loop(r *run) {
	defer func() {
		d.mu.Lock()
		if d.cur == r {
			d.cur = nil
		}
		d.mu.Unlock()
		d.emit(capture.EngineEvent{Kind: capture.EngineEnd})
	}()

	endpoint, err := d.endpoint()
	if err != nil {
		log.Error().Err(err).Msg("stt endpoint")
		d.emitError("network")
		return
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.dialer.Dial(endpoint, header)
	if err != nil {
		code := "network"
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			code = "service-not-allowed"
		}
		log.Warn().Err(err).Str("code", code).Msg("stt dial failed")
		d.emitError(code)
		return
	}
	defer conn.Close()

	pcm := make(chan []byte, 64)
	stream, err := d.src.Open(func(b []byte) {
		select {
		case pcm <- b:
		default:
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("open audio source")
		d.emitError("audio-capture")
		return
	}
	defer stream.Release()

	quit := make(chan struct{})
	defer close(quit)
	results := make(chan listenResponse)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var resp listenResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				continue
			}
			select {
			case results <- resp:
			case <-quit:
				return
			}
		}
	}()

	d.emit(capture.EngineEvent{Kind: capture.EngineStart})

	noSpeech := time.NewTimer(d.cfg.NoSpeechTimeout)
	defer noSpeech.Stop()
	var segments []string

	for {
		select {
		case <-r.stopped:
			d.drain(conn, results, readErr, segments)
			return

		case b := <-pcm:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				log.Warn().Err(err).Msg("stt write")
				d.emitError("network")
				return
			}

		case <-noSpeech.C:
			log.Debug().Msg("no speech detected")
			d.emitError("no-speech")
			d.closeStream(conn)
			return

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Warn().Err(err).Msg("stt read")
			d.emitError("network")
			return

		case resp := <-results:
			if resp.Type != "" && resp.Type != "Results" {
				continue
			}
			text := resp.transcript()
			if text == "" {
				continue
			}
			noSpeech.Stop()

			if !resp.IsFinal {
				if d.cfg.Recognition.InterimResults {
					d.emitResult(strings.Join(append(segments, text), " "), false)
				}
				continue
			}
			// Silence after a final counts towards the next no-speech.
			if d.cfg.Recognition.Continuous {
				d.emitResult(text, true)
				noSpeech.Reset(d.cfg.NoSpeechTimeout)
				continue
			}
			segments = append(segments, text)
			if resp.SpeechFinal {
				d.emitResult(strings.Join(segments, " "), true)
				d.closeStream(conn)
				return
			}
			noSpeech.Reset(d.cfg.NoSpeechTimeout)
		}
	}
}

// drain asks the service to flush buffered audio and forwards any final
// text that arrives before DrainTimeout.
func (d *Deepgram) drain(conn *websocket.Conn, results <-chan listenResponse, readErr <-chan error, segments []string) {
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`)); err != nil {
		return
	}
	timeout := time.NewTimer(d.cfg.DrainTimeout)
	defer timeout.Stop()
	for {
		select {
		case resp := <-results:
			if text := resp.transcript(); resp.IsFinal && text != "" {
				segments = append(segments, text)
			}
			if resp.FromFinalize {
				d.flush(segments)
				d.closeStream(conn)
				return
			}
		case <-readErr:
			d.flush(segments)
			return
		case <-timeout.C:
			d.flush(segments)
			d.closeStream(conn)
			return
		}
	}
}

func (d *Deepgram) flush(segments []string) {
	if len(segments) > 0 {
		d.emitResult(strings.Join(segments, " "), true)
	}
}

func (d *Deepgram) closeStream(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}
