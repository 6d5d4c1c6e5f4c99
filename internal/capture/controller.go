package capture

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/log"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/metrics"
)

// EventKind enumerates the normalized events a Controller emits.
type EventKind int

const (
	EventStarted EventKind = iota
	EventEnded
	EventInterim
	EventFinal
	EventError
)

// Event is a normalized capture event for the conversation.
type Event struct {
	Kind EventKind
	// Text is set for EventInterim and EventFinal.
	Text string
	// Err is set for EventError.
	Err ErrorKind
}

// Msg is implemented by every message a Controller's commands produce.
// Route them back through Handle.
type Msg interface {
	captureMsg()
}

// EngineMsg carries one raw engine callback.
type EngineMsg struct {
	Event EngineEvent
}

// PermissionMsg resolves a microphone permission request.
type PermissionMsg struct {
	token uint64
	Err   error
}

// SettledMsg fires once the device has had time to settle after the
// permission probe released it.
type SettledMsg struct {
	token uint64
}

// RestartMsg fires when a scheduled restart is due.
type RestartMsg struct {
	token  uint64
	Policy string
}

func (EngineMsg) captureMsg()     {}
func (PermissionMsg) captureMsg() {}
func (SettledMsg) captureMsg()    {}
func (RestartMsg) captureMsg()    {}

// Options tunes a Controller.
type Options struct {
	// Continuous engines keep listening across finals. Single-shot engines
	// end after each final and are restarted by the AfterFinal policy.
	Continuous bool
	// TwoPhase probes microphone permission first, releases the device,
	// waits SettleDelay, and only then starts the engine.
	TwoPhase    bool
	SettleDelay time.Duration
	// StartBeforeStop issues a start immediately before every stop, for
	// engines that otherwise ignore a stop while still warming up.
	StartBeforeStop bool
	Policies        Policies
	Scheduler       Scheduler
}

// Controller owns one Recognizer for one conversation lifetime. It is not
// safe for concurrent use; the conversation reducer is its only caller.
type Controller struct {
	rec   Recognizer
	mic   Microphone
	opts  Options
	ctx   context.Context
	stop  context.CancelFunc
	token uint64

	want     bool // the user wants to be listening
	pending  bool // permission or settle in flight
	restart  bool // a RestartMsg is scheduled for the current token
	active   bool // engine reported start and not yet end
	acquired bool // engine was started at least once
	fatal    bool
	released bool

	restartOnEnd *RestartPolicy
	unknownLeft  int
}

// New creates a Controller. rec may be nil when no engine is available, in
// which case the Controller reports unsupported and does nothing. mic may be
// nil to skip the permission probe.
func New(rec Recognizer, mic Microphone, opts Options) *Controller {
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{}
	}
	if opts.Policies == (Policies{}) {
		opts.Policies = DefaultPolicies(500 * time.Millisecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		rec:         rec,
		mic:         mic,
		opts:        opts,
		ctx:         ctx,
		stop:        cancel,
		unknownLeft: 1,
	}
}

// Supported reports whether a recognition engine is available.
func (c *Controller) Supported() bool {
	return c.rec != nil
}

// Intended reports whether the user currently wants capture running.
func (c *Controller) Intended() bool {
	return c.want
}

// Released reports whether Release has run.
func (c *Controller) Released() bool {
	return c.released
}

// Listen returns a command that waits for the next engine callback.
func (c *Controller) Listen() tea.Cmd {
	if c.rec == nil || c.released {
		return nil
	}
	events := c.rec.Events()
	ctx := c.ctx
	return func() tea.Msg {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			return EngineMsg{Event: ev}
		case <-ctx.Done():
			return nil
		}
	}
}

// Start begins listening. Calling it while a start is pending or the engine
// is already running does nothing.
func (c *Controller) Start() tea.Cmd {
	if c.rec == nil || c.released || c.fatal {
		return nil
	}
	if c.want && (c.pending || c.active) {
		return nil
	}
	c.want = true
	c.unknownLeft = 1
	c.restartOnEnd = nil
	c.restart = false
	c.token++

	if c.opts.TwoPhase && c.mic != nil {
		c.pending = true
		return c.requestPermission(c.token)
	}
	c.startEngine("")
	return nil
}

// Stop ends listening at the user's request. Pending permission probes and
// scheduled restarts are invalidated.
func (c *Controller) Stop() {
	if c.rec == nil || c.released {
		return
	}
	c.want = false
	c.pending = false
	c.restartOnEnd = nil
	c.restart = false
	c.token++
	if c.acquired {
		c.stopEngine()
	}
}

// Release stops the engine and ends this Controller's lifetime. Later calls
// do nothing, and no restart can happen afterwards.
func (c *Controller) Release() {
	if c.released {
		return
	}
	c.released = true
	c.want = false
	c.pending = false
	c.restartOnEnd = nil
	c.restart = false
	c.token++
	if c.rec != nil && c.acquired {
		c.stopEngine()
	}
	c.stop()
	log.Debug().Msg("capture released")
}

// Handle advances the Controller with one of its own messages and returns
// the normalized events it produced plus any follow-up command.
func (c *Controller) Handle(msg Msg) ([]Event, tea.Cmd) {
	switch msg := msg.(type) {
	case EngineMsg:
		evs, cmd := c.handleEngine(msg.Event)
		return evs, tea.Batch(cmd, c.Listen())

	case PermissionMsg:
		if msg.token != c.token || c.released {
			return nil, nil
		}
		if msg.Err != nil {
			c.pending = false
			log.Warn().Err(msg.Err).Msg("microphone permission denied")
			return c.fail(ErrPermissionDenied), nil
		}
		return nil, c.opts.Scheduler.After(c.ctx, c.opts.SettleDelay, SettledMsg{token: c.token})

	case SettledMsg:
		if msg.token != c.token || c.released {
			return nil, nil
		}
		c.pending = false
		return c.startEngine(""), nil

	case RestartMsg:
		if msg.token != c.token || c.released {
			return nil, nil
		}
		c.restart = false
		if !c.want || c.fatal {
			return nil, nil
		}
		if c.active {
			p := c.policyByName(msg.Policy)
			c.restartOnEnd = &p
			return nil, nil
		}
		return c.startEngine(msg.Policy), nil
	}
	return nil, nil
}

func (c *Controller) handleEngine(ev EngineEvent) ([]Event, tea.Cmd) {
	if c.released {
		return nil, nil
	}
	switch ev.Kind {
	case EngineStart:
		c.active = true
		return []Event{{Kind: EventStarted}}, nil

	case EngineEnd:
		c.active = false
		evs := []Event{{Kind: EventEnded}}
		if p := c.restartOnEnd; p != nil {
			c.restartOnEnd = nil
			if c.want && !c.fatal {
				evs = append(evs, c.startEngine(p.Name)...)
			}
			return evs, nil
		}
		// The engine stopped on its own and nothing will bring it back.
		if c.want && !c.pending && !c.restart {
			log.Debug().Msg("capture ended without restart")
			c.want = false
		}
		return evs, nil

	case EngineResult:
		var interim, final strings.Builder
		for _, r := range ev.Results {
			if r.Final {
				final.WriteString(r.Transcript)
			} else {
				interim.WriteString(r.Transcript)
			}
		}
		var evs []Event
		if s := strings.TrimSpace(interim.String()); s != "" {
			evs = append(evs, Event{Kind: EventInterim, Text: s})
		}
		s := strings.TrimSpace(final.String())
		if s == "" {
			return evs, nil
		}
		evs = append(evs, Event{Kind: EventFinal, Text: s})
		c.unknownLeft = 1
		if !c.opts.Continuous && c.want {
			return evs, c.schedule(c.opts.Policies.AfterFinal)
		}
		return evs, nil

	case EngineError:
		kind := Classify(ev.Code)
		metrics.CaptureErrors.WithLabelValues(kind.String()).Inc()
		switch kind {
		case ErrPermissionDenied:
			log.Error().Str("code", ev.Code).Msg("capture not allowed")
			return c.fail(kind), nil
		case ErrNoSpeech:
			if c.want {
				return []Event{{Kind: EventError, Err: kind}}, c.schedule(c.opts.Policies.AfterNoSpeech)
			}
		case ErrAborted:
			log.Debug().Msg("capture aborted")
		default:
			log.Warn().Str("code", ev.Code).Int("retries_left", c.unknownLeft).Msg("capture error")
			if c.want && c.unknownLeft > 0 {
				c.unknownLeft--
				return []Event{{Kind: EventError, Err: kind}}, c.schedule(c.opts.Policies.AfterUnknown)
			}
			c.want = false
		}
		return []Event{{Kind: EventError, Err: kind}}, nil
	}
	return nil, nil
}

// fail ends capture permanently for this lifetime.
func (c *Controller) fail(kind ErrorKind) []Event {
	c.fatal = true
	c.want = false
	c.restartOnEnd = nil
	c.restart = false
	c.token++
	return []Event{{Kind: EventError, Err: kind}}
}

func (c *Controller) schedule(p RestartPolicy) tea.Cmd {
	c.restart = true
	return c.opts.Scheduler.After(c.ctx, p.Delay, RestartMsg{token: c.token, Policy: p.Name})
}

func (c *Controller) policyByName(name string) RestartPolicy {
	switch name {
	case PolicyAfterNoSpeech:
		return c.opts.Policies.AfterNoSpeech
	case PolicyAfterUnknown:
		return c.opts.Policies.AfterUnknown
	}
	return c.opts.Policies.AfterFinal
}

// startEngine starts a run. policy is empty for user-initiated starts.
func (c *Controller) startEngine(policy string) []Event {
	c.acquired = true
	err := c.rec.Start()
	switch {
	case err == nil:
		if policy != "" {
			metrics.CaptureRestarts.WithLabelValues(policy).Inc()
			log.Debug().Str("policy", policy).Msg("capture restarted")
		}
		return nil
	case errors.Is(err, ErrAlreadyStarted):
		return nil
	}
	log.Warn().Err(err).Msg("recognizer start failed")
	c.want = false
	metrics.CaptureErrors.WithLabelValues(ErrUnknown.String()).Inc()
	return []Event{{Kind: EventError, Err: ErrUnknown}}
}

func (c *Controller) stopEngine() {
	if c.opts.StartBeforeStop {
		if err := c.rec.Start(); err != nil && !errors.Is(err, ErrAlreadyStarted) {
			log.Debug().Err(err).Msg("start before stop")
		}
	}
	c.rec.Stop()
}

// requestPermission probes the microphone and releases it straight away so
// the engine can open the device itself.
func (c *Controller) requestPermission(token uint64) tea.Cmd {
	mic, ctx := c.mic, c.ctx
	return func() tea.Msg {
		stream, err := mic.Request(ctx)
		if err != nil {
			return PermissionMsg{token: token, Err: err}
		}
		stream.Release()
		return PermissionMsg{token: token}
	}
}
