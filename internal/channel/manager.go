package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/log"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/metrics"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/session"
)

var (
	// ErrNotConnected is returned by Send when the channel is not open.
	ErrNotConnected = errors.New("channel not connected")
	// ErrClosed is returned once the channel has been closed by this side.
	ErrClosed = errors.New("channel closed")
	// ErrAlreadyAttempted is returned by a second Connect on the same Manager.
	ErrAlreadyAttempted = errors.New("connect already attempted")
)

// Config controls how the Manager dials and writes.
type Config struct {
	// URL is the session service base address, e.g. ws://localhost:3000.
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Manager owns one session channel for one coordinator lifetime. It makes at
// most one connection attempt and never reconnects.
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	attempted bool
	closed    bool
	closeOnce sync.Once
}

// New creates a Manager. Nothing is dialed until Connect.
func New(cfg Config) *Manager {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Manager{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Connect opens the channel for s. It returns once the channel is open or the
// attempt failed.
func (m *Manager) Connect(ctx context.Context, s session.Session) error {
	m.mu.Lock()
	if m.attempted {
		m.mu.Unlock()
		return ErrAlreadyAttempted
	}
	m.attempted = true
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	endpoint, err := Endpoint(m.cfg.URL, s)
	if err != nil {
		return err
	}

	conn, resp, err := m.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect to session %s: %w (status %d)", s.ID, err, resp.StatusCode)
		}
		return fmt.Errorf("connect to session %s: %w", s.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		// Close raced with the dial; do not leak the socket.
		conn.Close()
		return ErrClosed
	}
	m.conn = conn
	metrics.ConnectionOpen.Set(1)
	log.Info().Str("session", s.ID).Str("role", string(s.Role)).Msg("channel open")
	return nil
}

// Send writes one envelope. It never queues: if the channel is not open the
// envelope is dropped and ErrNotConnected returned.
func (m *Manager) Send(env Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.closed {
		return ErrNotConnected
	}
	m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := m.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// Next blocks until the next well-formed envelope arrives. Malformed payloads
// are logged and skipped. It returns an error once the channel is closed from
// either side.
func (m *Manager) Next() (Inbound, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return Inbound{}, ErrNotConnected
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if m.isClosed() {
				return Inbound{}, ErrClosed
			}
			return Inbound{}, fmt.Errorf("read envelope: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		in, err := Decode(data)
		if err != nil {
			metrics.InboundMalformed.Inc()
			log.Warn().Err(err).Int("bytes", len(data)).Msg("skipping inbound payload")
			continue
		}
		return in, nil
	}
}

// Close tears the channel down. Safe to call any number of times, including
// before or during Connect.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed = true
		if m.conn == nil {
			return
		}
		deadline := time.Now().Add(time.Second)
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"), deadline)
		m.conn.Close()
		metrics.ConnectionOpen.Set(0)
	})
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// IsRemoteClose reports whether err is a normal close initiated by the peer.
func IsRemoteClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
