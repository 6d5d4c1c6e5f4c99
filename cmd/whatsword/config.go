package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/session"
)

// Config is the resolved command line and environment.
type Config struct {
	URL       string
	SessionID string
	Role      session.Role

	CaptureLocale string
	SpeakLocale   string
	SpeakRate     float64
	SpeakPitch    float64

	Continuous      bool
	TwoPhase        bool
	StartBeforeStop bool
	SettleDelay     time.Duration
	RestartDelay    time.Duration
	NoSpeechTimeout time.Duration
	MicDevice       string

	STTKey string
	STTURL string

	TTSBackend string
	TTSURL     string
	TTSModel   string
	TTSVoice   string
	TTSKey     string

	StatusAddr  string
	HistoryPath string
	ShowHistory bool
	LogPath     string
	Version     bool
}

// Language is the short tag stamped on outbound messages.
func (c Config) Language() string {
	return session.LanguageTag(c.CaptureLocale)
}

func parseConfig(args []string, stderr io.Writer) (Config, error) {
	var cfg Config
	var role string

	fs := flag.NewFlagSet("whatsword", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.URL, "url", envOr("WHATSWORD_WS_URL", "ws://localhost:3000"), "session service WebSocket URL")
	fs.StringVar(&cfg.SessionID, "session", envOr("WHATSWORD_SESSION", ""), "session ID to join (or pass it as the first argument)")
	fs.StringVar(&role, "role", envOr("WHATSWORD_ROLE", string(session.RoleGuest)), "role in the session: guest or host")
	fs.StringVar(&cfg.CaptureLocale, "lang", envOr("WHATSWORD_CAPTURE_LANG", "de-DE"), "locale spoken into the microphone")
	fs.StringVar(&cfg.SpeakLocale, "speak-lang", envOr("WHATSWORD_SPEAK_LANG", "en-US"), "locale translations are read aloud in")
	fs.Float64Var(&cfg.SpeakRate, "rate", envFloat64Or("WHATSWORD_SPEAK_RATE", 1), "speech rate")
	fs.Float64Var(&cfg.SpeakPitch, "pitch", envFloat64Or("WHATSWORD_SPEAK_PITCH", 1), "speech pitch")
	fs.BoolVar(&cfg.Continuous, "continuous", envBoolOr("WHATSWORD_CONTINUOUS", false), "keep recognition running across utterances")
	fs.BoolVar(&cfg.TwoPhase, "two-phase", envBoolOr("WHATSWORD_TWO_PHASE", true), "probe microphone permission before starting recognition")
	fs.BoolVar(&cfg.StartBeforeStop, "start-before-stop", envBoolOr("WHATSWORD_START_BEFORE_STOP", false), "issue a start before every stop for engines that ignore early stops")
	fs.DurationVar(&cfg.SettleDelay, "settle", envDurationOr("WHATSWORD_SETTLE_DELAY", 500*time.Millisecond), "delay between permission probe and recognition start")
	fs.DurationVar(&cfg.RestartDelay, "restart-delay", envDurationOr("WHATSWORD_RESTART_DELAY", 500*time.Millisecond), "delay before recognition restarts itself")
	fs.DurationVar(&cfg.NoSpeechTimeout, "no-speech", envDurationOr("WHATSWORD_NO_SPEECH_TIMEOUT", 8*time.Second), "silence before recognition gives up")
	fs.StringVar(&cfg.MicDevice, "device", envOr("WHATSWORD_DEVICE", ""), "use named microphone device")
	fs.StringVar(&cfg.STTURL, "stt-url", envOr("WHATSWORD_STT_URL", ""), "streaming speech-to-text endpoint")
	fs.StringVar(&cfg.TTSBackend, "tts", envOr("WHATSWORD_TTS", "piper"), "speech output backend: piper, openai or none")
	fs.StringVar(&cfg.TTSURL, "tts-url", envOr("WHATSWORD_TTS_URL", ""), "speech synthesis endpoint")
	fs.StringVar(&cfg.TTSModel, "tts-model", envOr("WHATSWORD_TTS_MODEL", "tts-1"), "speech synthesis model (openai)")
	fs.StringVar(&cfg.TTSVoice, "tts-voice", envOr("WHATSWORD_TTS_VOICE", "alloy"), "speech synthesis voice (openai)")
	fs.StringVar(&cfg.StatusAddr, "status-addr", envOr("WHATSWORD_STATUS_ADDR", ""), "serve /metrics, /healthz and /mcp on this address (empty disables)")
	fs.StringVar(&cfg.HistoryPath, "db", envOr("WHATSWORD_DB", ""), "session history database (default: OS config dir, \"off\" disables)")
	fs.BoolVar(&cfg.ShowHistory, "history", false, "list recent sessions and exit")
	fs.StringVar(&cfg.LogPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.BoolVar(&cfg.Version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.STTKey = os.Getenv("DEEPGRAM_API_KEY")
	cfg.TTSKey = envOr("WHATSWORD_TTS_KEY", os.Getenv("OPENAI_API_KEY"))

	if cfg.SessionID == "" && fs.NArg() > 0 {
		cfg.SessionID = fs.Arg(0)
	}
	cfg.Role = session.Role(strings.ToLower(strings.TrimSpace(role)))
	if !cfg.Role.Valid() {
		return Config{}, fmt.Errorf("invalid role %q: want guest or host", role)
	}
	switch cfg.TTSBackend {
	case "piper", "openai", "none":
	default:
		return Config{}, fmt.Errorf("invalid tts backend %q: want piper, openai or none", cfg.TTSBackend)
	}
	if cfg.SpeakRate <= 0 || cfg.SpeakPitch <= 0 {
		return Config{}, errors.New("rate and pitch must be positive")
	}
	if cfg.TTSURL == "" {
		switch cfg.TTSBackend {
		case "piper":
			cfg.TTSURL = "http://localhost:5000"
		case "openai":
			cfg.TTSURL = "https://api.openai.com"
		}
	}
	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
