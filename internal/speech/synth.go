package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/session"
)

// Synthesizer turns text into WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options) ([]byte, error)
}

// DefaultPiperVoices maps primary language tags to Piper voices.
var DefaultPiperVoices = map[string]string{
	"en": "en_US-lessac-medium",
	"de": "de_DE-thorsten-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-davefx-medium",
}

// Piper talks to a piper-tts HTTP server.
type Piper struct {
	url    string
	voices map[string]string
	client *http.Client
}

// NewPiper creates a Piper synthesizer. voices may be nil to use
// DefaultPiperVoices.
func NewPiper(url string, voices map[string]string, client *http.Client) *Piper {
	if voices == nil {
		voices = DefaultPiperVoices
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Piper{url: strings.TrimRight(url, "/"), voices: voices, client: client}
}

func (p *Piper) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	var lengthScale float64
	if opts.Rate > 0 && opts.Rate != 1 {
		lengthScale = 1 / opts.Rate
	}
	body, err := json.Marshal(struct {
		Text        string  `json:"text"`
		Voice       string  `json:"voice,omitempty"`
		LengthScale float64 `json:"length_scale,omitempty"`
	}{Text: text, Voice: p.voices[session.LanguageTag(opts.Lang)], LengthScale: lengthScale})
	if err != nil {
		return nil, fmt.Errorf("marshal piper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create piper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doTTSRequest(p.client, req)
}

// OpenAI talks to any server exposing /v1/audio/speech.
type OpenAI struct {
	url    string
	model  string
	voice  string
	apiKey string
	client *http.Client
}

func NewOpenAI(url, model, voice, apiKey string, client *http.Client) *OpenAI {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{url: strings.TrimRight(url, "/"), model: model, voice: voice, apiKey: apiKey, client: client}
}

func (o *OpenAI) Synthesize(ctx context.Context, text string, opts Options) ([]byte, error) {
	body, err := json.Marshal(struct {
		Input          string  `json:"input"`
		Model          string  `json:"model"`
		Voice          string  `json:"voice"`
		Speed          float64 `json:"speed,omitempty"`
		ResponseFormat string  `json:"response_format"`
	}{Input: text, Model: o.model, Voice: o.voice, Speed: opts.Rate, ResponseFormat: "wav"})
	if err != nil {
		return nil, fmt.Errorf("marshal openai tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create openai tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	return doTTSRequest(o.client, req)
}

func doTTSRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
