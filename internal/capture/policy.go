package capture

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RestartPolicy names an automatic restart and how long to wait before it.
type RestartPolicy struct {
	Name  string
	Delay time.Duration
}

// Policy names.
const (
	PolicyAfterFinal    = "after-final"
	PolicyAfterNoSpeech = "after-no-speech"
	PolicyAfterUnknown  = "after-unknown-error"
)

// Policies is the set of restart policies a Controller applies.
type Policies struct {
	// AfterFinal restarts a single-shot engine once a final result arrived.
	AfterFinal RestartPolicy
	// AfterNoSpeech restarts after the engine timed out waiting for speech.
	AfterNoSpeech RestartPolicy
	// AfterUnknown retries once after an unclassified engine error.
	AfterUnknown RestartPolicy
}

// DefaultPolicies uses delay for every policy.
func DefaultPolicies(delay time.Duration) Policies {
	return Policies{
		AfterFinal:    RestartPolicy{Name: PolicyAfterFinal, Delay: delay},
		AfterNoSpeech: RestartPolicy{Name: PolicyAfterNoSpeech, Delay: delay},
		AfterUnknown:  RestartPolicy{Name: PolicyAfterUnknown, Delay: delay},
	}
}

// Scheduler turns a delay into a command that delivers msg once the delay
// has passed, or nothing if ctx ends first.
type Scheduler interface {
	After(ctx context.Context, d time.Duration, msg tea.Msg) tea.Cmd
}

// TimerScheduler schedules on wall-clock timers.
type TimerScheduler struct{}

func (TimerScheduler) After(ctx context.Context, d time.Duration, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			return msg
		}
	}
}
