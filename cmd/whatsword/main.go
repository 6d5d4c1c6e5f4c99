// Command whatsword joins a WhatsWord session from the terminal: it captures
// speech, sends final transcripts to the session service, and reads the
// other party's translated utterances aloud.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/app"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/audio"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/capture"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/channel"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/db"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/log"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/speech"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/status"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/stt"
)

var version = "dev"

const (
	captureRate  = 16000
	playbackRate = 22050
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if cfg.Version {
		fmt.Printf("whatsword %s\n", version)
		return
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	defer log.Close()

	if err := os.MkdirAll(log.Dir(), 0o755); err == nil {
		crashPath := filepath.Join(log.Dir(), "crash_log.txt")
		if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
			debug.SetCrashOutput(crashFile, debug.CrashOptions{})
		}
	}

	history := openHistory(cfg.HistoryPath)
	if history != nil {
		defer history.Close()
	}

	if cfg.ShowHistory {
		if history == nil {
			fmt.Fprintln(os.Stderr, "Error: session history is disabled")
			os.Exit(1)
		}
		if err := printHistory(os.Stdout, history); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, history); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openHistory(path string) *db.Store {
	if path == "off" {
		return nil
	}
	if path == "" {
		path = db.DefaultDBPath()
	}
	store, err := db.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("session history disabled")
		return nil
	}
	return store
}

func printHistory(w io.Writer, history *db.Store) error {
	sessions, err := history.RecentSessions(20)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions yet")
		return nil
	}
	for _, s := range sessions {
		outcome := s.EndReason
		if s.Active() {
			outcome = "active"
		}
		fmt.Fprintf(w, "%s  %-12s %-5s %3d utterances  %s\n",
			s.StartedAt.Format("2006-01-02 15:04"), s.SessionID, s.Role, s.UtteranceCount, outcome)
	}
	return nil
}

// run drives conversation lifetimes until the user leaves without asking for
// a restart.
func run(cfg Config, history *db.Store) error {
	snaps := &app.SnapshotStore{}

	if cfg.StatusAddr != "" {
		var h status.History
		if history != nil {
			h = history
		}
		srv := status.NewServer(cfg.StatusAddr, version, snaps, h)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	var mic *audio.Microphone
	if cfg.STTKey != "" {
		m, err := audio.NewMicrophone(captureRate, cfg.MicDevice)
		if err != nil {
			log.Warn().Err(err).Msg("microphone unavailable")
		} else {
			mic = m
			defer mic.Close()
		}
	}

	speaker := newSpeaker(cfg)
	if q, ok := speaker.(*speech.Queue); ok {
		defer q.Close()
	}

	for {
		restart, err := runOnce(cfg, mic, speaker, snaps, history)
		if err != nil {
			return err
		}
		if !restart {
			return nil
		}
		log.Info().Str("session", cfg.SessionID).Msg("restarting conversation")
	}
}

// runOnce runs one conversation lifetime with a fresh channel and capture
// controller.
func runOnce(cfg Config, mic *audio.Microphone, speaker speech.Speaker, snaps *app.SnapshotStore, history *db.Store) (bool, error) {
	ch := channel.New(channel.Config{URL: cfg.URL})

	rec := newRecognizer(cfg, mic)
	var probe capture.Microphone
	if mic != nil {
		probe = mic
	}
	ctl := capture.New(rec, probe, capture.Options{
		Continuous:      cfg.Continuous,
		TwoPhase:        cfg.TwoPhase,
		SettleDelay:     cfg.SettleDelay,
		StartBeforeStop: cfg.StartBeforeStop,
		Policies:        capture.DefaultPolicies(cfg.RestartDelay),
	})

	model := app.New(app.Config{
		SessionID: cfg.SessionID,
		Role:      cfg.Role,
		Endpoint:  cfg.URL,
		Language:  cfg.Language(),
		Speak: speech.Options{
			Lang:  cfg.SpeakLocale,
			Rate:  cfg.SpeakRate,
			Pitch: cfg.SpeakPitch,
		},
	}, app.Deps{
		Channel:   ch,
		Capture:   ctl,
		Speaker:   speaker,
		Snapshots: snaps,
	})

	var runID string
	if history != nil && model.Session().ID != "" {
		id, err := history.BeginSession(model.Session().ID, string(cfg.Role), cfg.URL, time.Now())
		if err != nil {
			log.Warn().Err(err).Msg("record session start")
		}
		runID = id
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()

	if d, ok := rec.(*stt.Deepgram); ok {
		d.Close()
	}
	if err != nil {
		ch.Close()
		return false, fmt.Errorf("run tui: %w", err)
	}

	m := final.(app.Model)
	if runID != "" {
		if err := history.EndSession(runID, m.EndReason(), m.UtteranceCount(), time.Now()); err != nil {
			log.Warn().Err(err).Msg("record session end")
		}
	}
	return m.RestartRequested(), nil
}

// newRecognizer returns nil when speech recognition is not available, which
// the conversation reports as unsupported.
func newRecognizer(cfg Config, mic *audio.Microphone) capture.Recognizer {
	if mic == nil {
		return nil
	}
	rec, err := stt.New(stt.Config{
		URL:             cfg.STTURL,
		APIKey:          cfg.STTKey,
		SampleRate:      captureRate,
		NoSpeechTimeout: cfg.NoSpeechTimeout,
		Recognition: capture.Config{
			Language:        cfg.CaptureLocale,
			Continuous:      cfg.Continuous,
			InterimResults:  true,
			MaxAlternatives: 1,
		},
	}, mic)
	if err != nil {
		if !errors.Is(err, capture.ErrUnsupported) {
			log.Warn().Err(err).Msg("speech recognition unavailable")
		}
		return nil
	}
	return rec
}

func newSpeaker(cfg Config) speech.Speaker {
	var synth speech.Synthesizer
	switch cfg.TTSBackend {
	case "piper":
		synth = speech.NewPiper(cfg.TTSURL, nil, nil)
	case "openai":
		synth = speech.NewOpenAI(cfg.TTSURL, cfg.TTSModel, cfg.TTSVoice, cfg.TTSKey, nil)
	default:
		return speech.Nop{}
	}
	player, err := speech.NewOtoPlayer(playbackRate)
	if err != nil {
		log.Warn().Err(err).Msg("speech output disabled")
		return speech.Nop{}
	}
	return speech.NewQueue(synth, player, 8)
}
