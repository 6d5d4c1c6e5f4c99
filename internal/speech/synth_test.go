package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPiperRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			t.Errorf("path = %q, want /synthesize", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	p := NewPiper(srv.URL+"/", nil, srv.Client())
	audio, err := p.Synthesize(context.Background(), "Hallo", Options{Lang: "de-DE", Rate: 2})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "RIFF" {
		t.Errorf("audio = %q", audio)
	}
	if got["text"] != "Hallo" {
		t.Errorf("text = %v", got["text"])
	}
	if got["voice"] != "de_DE-thorsten-medium" {
		t.Errorf("voice = %v", got["voice"])
	}
	if got["length_scale"] != 0.5 {
		t.Errorf("length_scale = %v, want 0.5", got["length_scale"])
	}
}

func TestPiperDefaultRateOmitsLengthScale(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := new(strings.Builder)
		buf := make([]byte, 512)
		n, _ := r.Body.Read(buf)
		b.Write(buf[:n])
		raw = b.String()
	}))
	defer srv.Close()

	NewPiper(srv.URL, nil, nil).Synthesize(context.Background(), "Hi", Options{Lang: "en-US", Rate: 1})
	if strings.Contains(raw, "length_scale") {
		t.Errorf("body = %s, should omit length_scale at rate 1", raw)
	}
}

func TestOpenAIRequest(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	o := NewOpenAI(srv.URL, "kokoro", "af_heart", "secret", nil)
	if _, err := o.Synthesize(context.Background(), "Hello", Options{Rate: 1.25}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if auth != "Bearer secret" {
		t.Errorf("auth = %q", auth)
	}
	if got["input"] != "Hello" || got["model"] != "kokoro" || got["voice"] != "af_heart" {
		t.Errorf("body = %v", got)
	}
	if got["speed"] != 1.25 || got["response_format"] != "wav" {
		t.Errorf("body = %v", got)
	}
}

func TestTTSStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewPiper(srv.URL, nil, nil).Synthesize(context.Background(), "x", Options{})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want status 503", err)
	}
}
