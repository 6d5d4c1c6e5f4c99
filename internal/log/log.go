// Package log is the process-wide diagnostics logger. The terminal belongs to
// the TUI, so everything goes to a file under the log directory. Until Init
// succeeds every call is a no-op.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const fileName = "diagnostics_log.txt"

var (
	diagLog  zerolog.Logger = zerolog.Nop()
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	dir      string
)

// ResolveDir picks the log directory: flag first, then WHATSWORD_LOG_PATH,
// then the OS cache directory.
func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv("WHATSWORD_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "whatsword"), nil
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// Path returns the diagnostics file path inside the current directory.
func Path() string {
	return filepath.Join(dir, fileName)
}

// Init opens the diagnostics file and enables logging.
func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	diagFile = f

	w := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(w).With().Timestamp().Int("pid", os.Getpid()).Logger()
	logReady = true
	return nil
}

// Close flushes and disables logging.
func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	diagLog = zerolog.Nop()
	logReady = false
}

// Ready reports whether Init has succeeded.
func Ready() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return logReady
}

// Debug, Info, Warn and Error return events on the diagnostics logger. The
// returned event is nil when logging is disabled, and zerolog treats a nil
// event as a no-op.
func Debug() *zerolog.Event { return event(zerolog.DebugLevel) }
func Info() *zerolog.Event  { return event(zerolog.InfoLevel) }
func Warn() *zerolog.Event  { return event(zerolog.WarnLevel) }
func Error() *zerolog.Event { return event(zerolog.ErrorLevel) }

func event(level zerolog.Level) *zerolog.Event {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		return nil
	}
	return diagLog.WithLevel(level)
}

// SessionStart records the beginning of a coordinator lifetime.
func SessionStart(sessionID, role, endpoint string) {
	Info().Str("session", sessionID).Str("role", role).Str("endpoint", endpoint).Msg("session start")
}

// SessionEnd records how a coordinator lifetime ended.
func SessionEnd(sessionID, reason string, utterances int) {
	Info().Str("session", sessionID).Str("reason", reason).Int("utterances", utterances).Msg("session end")
}
