package stt

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/capture"
)

type fakeSource struct {
	mu       sync.Mutex
	opened   int
	released int
	err      error
}

type streamFunc func()

func (f streamFunc) Release() { f() }

func (s *fakeSource) Open(onData func([]byte)) (capture.AudioStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.opened++
	onData(make([]byte, 320))
	return streamFunc(func() {
		s.mu.Lock()
		s.released++
		s.mu.Unlock()
	}), nil
}

func (s *fakeSource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.released
}

// fakeListen serves the listen protocol: it checks auth, waits for audio,
// then replays script.
func fakeListen(t *testing.T, script []string, query chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if query != nil {
			query <- r.URL.RawQuery
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, msg := range script {
			conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collect(t *testing.T, d *Deepgram) []capture.EngineEvent {
	t.Helper()
	var out []capture.EngineEvent
	for {
		select {
		case ev := <-d.Events():
			out = append(out, ev)
			if ev.Kind == capture.EngineEnd {
				return out
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out, got %+v", out)
		}
	}
}

func result(text string, final, speechFinal bool) string {
	f, s := "false", "false"
	if final {
		f = "true"
	}
	if speechFinal {
		s = "true"
	}
	return `{"type":"Results","is_final":` + f + `,"speech_final":` + s +
		`,"channel":{"alternatives":[{"transcript":"` + text + `"}]}}`
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{}, &fakeSource{})
	if !errors.Is(err, capture.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestSingleShotRun(t *testing.T) {
	query := make(chan string, 1)
	srv := fakeListen(t, []string{
		result("Hal", false, false),
		result("Hallo", true, false),
		result("Welt", true, true),
	}, query)

	src := &fakeSource{}
	d, err := New(Config{
		URL:         wsURL(srv),
		APIKey:      "test-key",
		Recognition: capture.Config{Language: "de-DE", InterimResults: true},
	}, src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	evs := collect(t, d)

	q := <-query
	for _, want := range []string{"language=de", "encoding=linear16", "sample_rate=16000", "interim_results=true"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}

	kinds := make([]capture.EngineEventKind, len(evs))
	for i, ev := range evs {
		kinds[i] = ev.Kind
	}
	if len(evs) != 4 || evs[0].Kind != capture.EngineStart || evs[3].Kind != capture.EngineEnd {
		t.Fatalf("event kinds = %v, want start,result,result,end", kinds)
	}
	if r := evs[1].Results[0]; r.Final || r.Transcript != "Hal" {
		t.Errorf("interim = %+v", r)
	}
	if r := evs[2].Results[0]; !r.Final || r.Transcript != "Hallo Welt" {
		t.Errorf("final = %+v, want Hallo Welt", r)
	}

	if opened, released := src.counts(); opened != 1 || released != 1 {
		t.Errorf("opened/released = %d/%d, want 1/1", opened, released)
	}
}

func TestContinuousEmitsEachFinal(t *testing.T) {
	srv := fakeListen(t, []string{
		result("Guten Tag", true, true),
		result("Wie geht es", true, true),
	}, nil)
	d, err := New(Config{
		URL:         wsURL(srv),
		APIKey:      "test-key",
		Recognition: capture.Config{Continuous: true},
	}, &fakeSource{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()
	d.Start()

	var finals []string
	timeout := time.After(3 * time.Second)
	for len(finals) < 2 {
		select {
		case ev := <-d.Events():
			if ev.Kind == capture.EngineResult && ev.Results[0].Final {
				finals = append(finals, ev.Results[0].Transcript)
			}
		case <-timeout:
			t.Fatalf("finals = %v", finals)
		}
	}
	if finals[0] != "Guten Tag" || finals[1] != "Wie geht es" {
		t.Errorf("finals = %v", finals)
	}
	if err := d.Start(); !errors.Is(err, capture.ErrAlreadyStarted) {
		t.Errorf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	d.Stop()
	evs := collect(t, d)
	if evs[len(evs)-1].Kind != capture.EngineEnd {
		t.Errorf("last event = %+v, want end", evs[len(evs)-1])
	}
}

func TestNoSpeechTimeout(t *testing.T) {
	srv := fakeListen(t, nil, nil)
	d, _ := New(Config{URL: wsURL(srv), APIKey: "test-key", NoSpeechTimeout: 50 * time.Millisecond}, &fakeSource{})
	defer d.Close()
	d.Start()

	evs := collect(t, d)
	if len(evs) != 3 || evs[1].Kind != capture.EngineError || evs[1].Code != "no-speech" {
		t.Errorf("events = %+v, want start,no-speech,end", evs)
	}
}

func TestContinuousNoSpeechAfterFinal(t *testing.T) {
	srv := fakeListen(t, []string{result("Guten Tag", true, true)}, nil)
	d, _ := New(Config{
		URL:             wsURL(srv),
		APIKey:          "test-key",
		NoSpeechTimeout: 100 * time.Millisecond,
		Recognition:     capture.Config{Continuous: true},
	}, &fakeSource{})
	defer d.Close()
	d.Start()

	evs := collect(t, d)
	if len(evs) != 4 {
		t.Fatalf("events = %+v, want start,final,no-speech,end", evs)
	}
	if evs[1].Kind != capture.EngineResult || !evs[1].Results[0].Final {
		t.Errorf("events[1] = %+v, want final result", evs[1])
	}
	if evs[2].Kind != capture.EngineError || evs[2].Code != "no-speech" {
		t.Errorf("events[2] = %+v, want no-speech", evs[2])
	}
}

func TestUnauthorizedMapsToNotAllowed(t *testing.T) {
	srv := fakeListen(t, nil, nil)
	d, _ := New(Config{URL: wsURL(srv), APIKey: "wrong"}, &fakeSource{})
	defer d.Close()
	d.Start()

	evs := collect(t, d)
	if len(evs) != 2 || evs[0].Code != "service-not-allowed" {
		t.Errorf("events = %+v, want service-not-allowed,end", evs)
	}
	if capture.Classify(evs[0].Code) != capture.ErrPermissionDenied {
		t.Error("auth failure should classify as permission denied")
	}
}

func TestAudioSourceFailure(t *testing.T) {
	srv := fakeListen(t, nil, nil)
	d, _ := New(Config{URL: wsURL(srv), APIKey: "test-key"}, &fakeSource{err: errors.New("no device")})
	defer d.Close()
	d.Start()

	evs := collect(t, d)
	if len(evs) != 2 || evs[0].Code != "audio-capture" {
		t.Errorf("events = %+v, want audio-capture,end", evs)
	}
}

func TestStartAfterCloseFails(t *testing.T) {
	d, _ := New(Config{APIKey: "k"}, &fakeSource{})
	d.Close()
	if err := d.Start(); err == nil {
		t.Error("Start after Close should fail")
	}
}
