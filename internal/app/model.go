package app

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/capture"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/channel"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/log"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/metrics"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/session"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/speech"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/ui"
)

// User-facing reasons for the errored phase.
const (
	MsgNoSession         = "No session ID provided"
	MsgUnsupported       = "Speech recognition is not supported on this system."
	MsgConnectionError   = "Connection error. Please try again."
	MsgConnectionClosed  = "The session service closed the connection."
	MsgHostLeft          = "Host has left the conversation"
	MsgPermissionDenied  = "Microphone permission denied. Please allow microphone access."
	noticeNoSpeech       = "No speech detected"
	noticeCaptureTrouble = "Speech recognition error"
)

// Phase is the conversation lifecycle state.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseActive
	PhaseErrored
	PhaseLeft
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseErrored:
		return "errored"
	case PhaseLeft:
		return "left"
	}
	return "unknown"
}

// Channel is the session channel as the conversation uses it.
type Channel interface {
	Connect(ctx context.Context, s session.Session) error
	Send(env channel.Outbound) error
	Next() (channel.Inbound, error)
	Close() error
}

// Config holds per-conversation settings.
type Config struct {
	SessionID string
	Role      session.Role
	// Endpoint is the session service URL, for diagnostics only.
	Endpoint string
	// Language is the short tag stamped on outbound messages, e.g. "de".
	Language string
	// Speak configures spoken output of inbound translations.
	Speak speech.Options
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Deps are the collaborators a conversation drives.
type Deps struct {
	Channel   Channel
	Capture   *capture.Controller
	Speaker   speech.Speaker
	Snapshots *SnapshotStore
}

// teardown records which resources have been let go. Shared across model
// copies so each is released once.
type teardown struct {
	capture bool
	channel bool
}

// Model is the conversation coordinator. Every state change happens in
// Update; effects run as commands and report back as messages.
type Model struct {
	cfg     Config
	sess    session.Session
	channel Channel
	capture *capture.Controller
	speaker speech.Speaker
	snaps   *SnapshotStore
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	td      *teardown

	phase        Phase
	conn         session.ConnectionState
	captureState session.CaptureState
	timeline     *session.Timeline
	errorMessage string
	restart      bool

	notice    string
	noticeSeq int

	spinner        spinner.Model
	width          int
	height         int
	timelineScroll int
	timelineLive   bool
}

// New creates a conversation in the connecting phase, or directly in the
// errored phase when a precondition fails.
func New(cfg Config, deps Deps) Model {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Speaker == nil {
		deps.Speaker = speech.Nop{}
	}
	if deps.Capture == nil {
		deps.Capture = capture.New(nil, nil, capture.Options{})
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.SpinnerStyle

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		cfg:          cfg,
		channel:      deps.Channel,
		capture:      deps.Capture,
		speaker:      deps.Speaker,
		snaps:        deps.Snapshots,
		now:          cfg.Now,
		ctx:          ctx,
		cancel:       cancel,
		td:           &teardown{},
		phase:        PhaseConnecting,
		conn:         session.Connecting(),
		captureState: session.Idle(),
		timeline:     &session.Timeline{},
		spinner:      sp,
		timelineLive: true,
	}

	sess, err := session.New(cfg.SessionID, cfg.Role)
	switch {
	case errors.Is(err, session.ErrNoSessionID):
		m.sess = session.Session{Role: cfg.Role}
		m.fail(MsgNoSession, session.Closed(session.CloseNone))
	case err != nil:
		m.sess = session.Session{ID: cfg.SessionID, Role: cfg.Role}
		m.fail(err.Error(), session.Closed(session.CloseNone))
	default:
		m.sess = sess
		if !m.capture.Supported() {
			m.captureState = session.Unsupported()
			m.fail(MsgUnsupported, session.Closed(session.CloseNone))
		}
	}
	m.publish()
	return m
}

// Init starts the single connection attempt.
func (m Model) Init() tea.Cmd {
	if m.phase != PhaseConnecting {
		return nil
	}
	log.SessionStart(m.sess.ID, string(m.sess.Role), m.cfg.Endpoint)
	return tea.Batch(
		m.spinner.Tick,
		connectCmd(m.ctx, m.channel, m.sess),
		m.capture.Listen(),
	)
}

func connectCmd(ctx context.Context, ch Channel, s session.Session) tea.Cmd {
	return func() tea.Msg {
		if err := ch.Connect(ctx, s); err != nil {
			return ConnectFailedMsg{Err: err}
		}
		return ConnectedMsg{}
	}
}

// readEnvelopeCmd reads the next inbound envelope.
func readEnvelopeCmd(ch Channel) tea.Cmd {
	return func() tea.Msg {
		in, err := ch.Next()
		if err != nil {
			return ChannelClosedMsg{Err: err}
		}
		return EnvelopeMsg{Envelope: in}
	}
}

// clearNoticeCmd fires after a delay to clear the notice with the given seq.
func clearNoticeCmd(seq int) tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearNoticeMsg{seq: seq}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := m.update(msg)
	m.publish()
	return m, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if m.phase != PhaseConnecting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConnectedMsg:
		if m.phase != PhaseConnecting {
			return m, nil
		}
		m.phase = PhaseActive
		m.conn = session.Open()
		log.Info().Str("session", m.sess.ID).Msg("conversation active")
		return m, readEnvelopeCmd(m.channel)

	case ConnectFailedMsg:
		if m.phase != PhaseConnecting {
			return m, nil
		}
		log.Error().Err(msg.Err).Str("session", m.sess.ID).Msg("connect failed")
		m.fail(MsgConnectionError, session.Closed(session.CloseError))
		return m, nil

	case EnvelopeMsg:
		if m.phase != PhaseActive {
			return m, nil
		}
		cmd := m.handleEnvelope(msg.Envelope)
		if m.phase != PhaseActive {
			return m, cmd
		}
		return m, tea.Batch(cmd, readEnvelopeCmd(m.channel))

	case ChannelClosedMsg:
		if m.phase != PhaseActive {
			return m, nil
		}
		if channel.IsRemoteClose(msg.Err) {
			log.Warn().Err(msg.Err).Msg("channel closed by service")
			m.fail(MsgConnectionClosed, session.Closed(session.CloseRemote))
		} else {
			log.Error().Err(msg.Err).Msg("channel error")
			m.fail(MsgConnectionError, session.Closed(session.CloseError))
		}
		return m, nil

	case capture.Msg:
		evs, cmd := m.capture.Handle(msg)
		cmds := []tea.Cmd{cmd}
		for _, ev := range evs {
			cmds = append(cmds, m.handleCapture(ev))
		}
		return m, tea.Batch(cmds...)

	case ToggleListeningMsg:
		return m.toggleListening()

	case LeaveMsg:
		return m.leave(msg.Restart)

	case ClearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil
	}

	return m, nil
}

// handleEnvelope applies one inbound envelope.
func (m *Model) handleEnvelope(in channel.Inbound) tea.Cmd {
	switch {
	case in.Utterance():
		u := m.timeline.Append(session.Utterance{
			Sender:         in.Sender,
			OriginalText:   in.Original(),
			TranslatedText: in.TranslatedText,
			CreatedAt:      in.CreatedAt(m.now()),
		})
		metrics.UtterancesReceived.WithLabelValues(in.Type).Inc()
		if u.TranslatedText != "" && u.Sender == m.sess.Role.Peer() {
			m.speaker.Speak(u.TranslatedText, m.cfg.Speak)
		}
		if m.timelineLive {
			m.scrollToBottom()
		}

	case in.Type == channel.TypeHostLeft:
		log.Info().Str("session", m.sess.ID).Msg("host left")
		m.fail(MsgHostLeft, session.Closed(session.ClosePeerLeft))

	default:
		log.Debug().Str("type", in.Type).Msg("ignoring envelope")
	}
	return nil
}

// handleCapture applies one normalized capture event.
func (m *Model) handleCapture(ev capture.Event) tea.Cmd {
	switch ev.Kind {
	case capture.EventStarted:
		if m.capture.Intended() {
			m.captureState = session.Listening()
		}

	case capture.EventInterim:
		if m.capture.Intended() {
			m.captureState = session.Interim(ev.Text)
		}

	case capture.EventFinal:
		if m.captureState.Active() {
			m.captureState = session.Listening()
		}
		m.sendLocal(ev.Text)

	case capture.EventEnded:
		m.captureState = session.Idle()

	case capture.EventError:
		switch ev.Err {
		case capture.ErrPermissionDenied:
			m.fail(MsgPermissionDenied, m.conn)
		case capture.ErrNoSpeech:
			return m.setNotice(noticeNoSpeech)
		case capture.ErrUnknown:
			if !m.capture.Intended() {
				m.captureState = session.Idle()
			}
			return m.setNotice(noticeCaptureTrouble)
		}
	}
	return nil
}

// sendLocal records a local final utterance and hands it to the channel.
// The timeline entry stays even when the send is dropped.
func (m *Model) sendLocal(text string) {
	if m.phase != PhaseActive {
		log.Warn().Str("phase", m.phase.String()).Msg("dropping final outside active conversation")
		return
	}
	u := m.timeline.Append(session.Utterance{
		Sender:       m.sess.Role,
		OriginalText: text,
		CreatedAt:    m.now(),
	})
	if m.timelineLive {
		m.scrollToBottom()
	}
	if err := m.channel.Send(channel.NewMessage(text, m.cfg.Language, u.CreatedAt)); err != nil {
		metrics.SendDropped.Inc()
		log.Warn().Err(err).Str("utterance", u.ID).Msg("send dropped")
		return
	}
	metrics.UtterancesSent.Inc()
}

func (m Model) toggleListening() (Model, tea.Cmd) {
	if m.phase != PhaseActive || !m.capture.Supported() {
		return m, nil
	}
	if m.capture.Intended() || m.captureState.Active() {
		m.capture.Stop()
		m.captureState = session.Idle()
		return m, nil
	}
	return m, m.capture.Start()
}

// fail moves to the errored phase and releases capture and channel.
func (m *Model) fail(reason string, conn session.ConnectionState) {
	if m.phase == PhaseErrored || m.phase == PhaseLeft {
		return
	}
	m.phase = PhaseErrored
	m.errorMessage = reason
	if conn.Status != session.ConnClosed {
		conn = session.Closed(session.CloseClientInitiated)
	}
	m.conn = conn
	m.release()
	log.Warn().Str("session", m.sess.ID).Str("reason", reason).Str("conn", m.conn.String()).Msg("conversation errored")
}

func (m Model) leave(restart bool) (Model, tea.Cmd) {
	if m.phase == PhaseLeft {
		return m, tea.Quit
	}
	m.release()
	if m.conn.Status != session.ConnClosed {
		m.conn = session.Closed(session.CloseClientInitiated)
	}
	m.phase = PhaseLeft
	m.restart = restart
	log.SessionEnd(m.sess.ID, m.EndReason(), m.timeline.Len())
	return m, tea.Quit
}

// release stops capture and closes the channel, each exactly once.
func (m *Model) release() {
	if !m.td.capture {
		m.td.capture = true
		m.capture.Release()
	}
	if !m.td.channel {
		m.td.channel = true
		if m.channel != nil {
			if err := m.channel.Close(); err != nil {
				log.Warn().Err(err).Msg("close channel")
			}
		}
	}
	m.captureState = session.Idle()
	m.cancel()
}

func (m *Model) setNotice(text string) tea.Cmd {
	m.notice = text
	m.noticeSeq++
	return clearNoticeCmd(m.noticeSeq)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC, KeyEsc:
		return m.leave(false)

	case KeyRestart:
		if m.phase == PhaseErrored {
			return m.leave(true)
		}
		return m, nil

	case KeySpace:
		return m.toggleListening()

	case KeyUp:
		m.timelineLive = false
		if m.timelineScroll > 0 {
			m.timelineScroll--
		}
		return m, nil

	case KeyDown:
		maxScroll := m.maxTimelineScroll()
		m.timelineScroll++
		if m.timelineScroll >= maxScroll {
			m.timelineScroll = maxScroll
			m.timelineLive = true
		}
		return m, nil
	}

	return m, nil
}

func (m Model) publish() {
	if m.snaps == nil {
		return
	}
	m.snaps.store(m.Snapshot())
}

// Snapshot captures the current observable state. Utterances shares the
// timeline's backing array and must be treated as read-only.
func (m Model) Snapshot() Snapshot {
	return Snapshot{
		SessionID:  m.sess.ID,
		Role:       m.sess.Role,
		Phase:      m.phase,
		Connection: m.conn,
		Capture:    m.CaptureState(),
		Error:      m.errorMessage,
		Utterances: m.timeline.View(),
		UpdatedAt:  m.now(),
	}
}

func (m Model) Phase() Phase { return m.phase }
func (m Model) Connection() session.ConnectionState { return m.conn }
func (m Model) Session() session.Session { return m.sess }
func (m Model) ErrorMessage() string { return m.errorMessage }
func (m Model) Notice() string { return m.notice }
func (m Model) Timeline() []session.Utterance { return m.timeline.Entries() }
func (m Model) UtteranceCount() int { return m.timeline.Len() }
func (m Model) RestartRequested() bool { return m.restart }

// CaptureState is the capture state as presented: idle whenever the channel
// is not open.
func (m Model) CaptureState() session.CaptureState {
	if !m.conn.IsOpen() {
		return session.Idle()
	}
	return m.captureState
}

// EndReason summarizes how the conversation ended, for history.
func (m Model) EndReason() string {
	switch {
	case m.errorMessage != "":
		return m.errorMessage
	case m.phase == PhaseLeft:
		return "left"
	}
	return m.phase.String()
}
