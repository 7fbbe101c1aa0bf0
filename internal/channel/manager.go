package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/nhle/notification-sync/internal/model"
)

// State is the lifecycle state of the push connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Registered
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Registered:
		return "live"
	default:
		return "offline"
	}
}

// Handler receives every notification pushed over the channel. It runs on
// the manager's reader goroutine and must not call Connect or Disconnect.
type Handler func(model.Notification)

// Options configures a Manager.
type Options struct {
	// URL is the push endpoint, e.g. ws://localhost:1100/ws.
	URL string

	// Dialer opens connections. Defaults to WebsocketDialer{}.
	Dialer Dialer

	// InitialBackoff and MaxBackoff bound the reconnect delays.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger zerolog.Logger
}

// Manager owns the single push connection of a session. It registers the
// session user on every (re)connect and reconnects with exponential backoff
// for as long as it is connected, without ever giving up.
type Manager struct {
	url            string
	dialer         Dialer
	handler        Handler
	initialBackoff time.Duration
	maxBackoff     time.Duration
	log            zerolog.Logger

	mu         gosync.Mutex
	state      State
	userID     string
	cancel     context.CancelFunc
	done       chan struct{}
	conn       Conn
	outbox     []Frame
	registered chan struct{}
}

// NewManager creates a disconnected manager that delivers pushed records
// to handler.
func NewManager(opts Options, handler Handler) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = 30 * time.Second
	}

	return &Manager{
		url:            opts.URL,
		dialer:         opts.Dialer,
		handler:        handler,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		log:            opts.Logger.With().Str("component", "channel").Logger(),
		registered:     make(chan struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserID returns the user the current connection is bound to, or "" when
// disconnected.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// Registered returns a channel that is closed once the current connection
// attempt has registered its user. Every reconnect attempt gets a new one.
func (m *Manager) Registered() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered
}

// Connect establishes the push connection for userID. It is a no-op while a
// connection for the same user is being established or is registered. A
// connection bound to a different user is torn down first.
func (m *Manager) Connect(userID string) {
	m.mu.Lock()
	if m.cancel != nil && m.userID == userID {
		m.mu.Unlock()
		return
	}
	prev := m.stopLocked()
	m.mu.Unlock()

	if prev != nil {
		<-prev
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		// A concurrent Connect already started a connection.
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.userID = userID
	m.cancel = cancel
	m.done = make(chan struct{})
	m.beginAttemptLocked(userID)

	m.log.Info().Str("user_id", userID).Msg("connecting push channel")
	go m.run(ctx, userID, m.done)
}

// Disconnect tears the connection down from any state. Once it returns no
// further notifications are delivered to the handler.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	done := m.stopLocked()
	m.mu.Unlock()

	if done != nil {
		<-done
		m.log.Info().Msg("push channel disconnected")
	}
}

// stopLocked cancels the running connection and returns a channel closed
// when its goroutine has exited. Callers must hold m.mu.
func (m *Manager) stopLocked() chan struct{} {
	if m.cancel == nil {
		return nil
	}

	m.cancel()
	if m.conn != nil {
		// Unblocks a pending read.
		_ = m.conn.Close()
		m.conn = nil
	}

	done := m.done
	m.cancel = nil
	m.done = nil
	m.userID = ""
	m.outbox = nil
	m.state = Disconnected

	return done
}

// beginAttemptLocked moves to Connecting and buffers the registration for
// the upcoming connection. Callers must hold m.mu.
func (m *Manager) beginAttemptLocked(userID string) {
	m.state = Connecting
	m.registered = make(chan struct{})

	frame, err := NewFrame(EventRegister, userID)
	if err != nil {
		m.log.Error().Err(err).Msg("building register frame")
		return
	}
	m.outbox = []Frame{frame}
}

// run drives connection attempts until ctx is cancelled.
func (m *Manager) run(ctx context.Context, userID string, done chan struct{}) {
	defer close(done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initialBackoff
	b.MaxInterval = m.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := m.session(ctx, b)
		if ctx.Err() != nil {
			return
		}

		delay := b.NextBackOff()
		m.log.Warn().Err(err).Dur("retry_in", delay).Msg("push channel dropped")

		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		m.beginAttemptLocked(userID)
		m.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials, flushes the buffered registration and reads frames until
// the connection fails or ctx is cancelled.
func (m *Manager) session(ctx context.Context, b backoff.BackOff) error {
	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", m.url, err)
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return ctx.Err()
	}
	m.conn = conn
	outbox := m.outbox
	m.outbox = nil
	m.mu.Unlock()

	defer m.detach(conn)

	for _, f := range outbox {
		if err := conn.WriteJSON(f); err != nil {
			return fmt.Errorf("writing %s frame: %w", f.Event, err)
		}
	}

	m.mu.Lock()
	if ctx.Err() == nil {
		m.state = Registered
		close(m.registered)
	}
	m.mu.Unlock()
	b.Reset()
	m.log.Info().Msg("push channel registered")

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading frame: %w", err)
		}
		m.dispatch(ctx, f)
	}
}

// detach closes conn and forgets it if it is still the current one.
func (m *Manager) detach(conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == conn {
		m.conn = nil
	}
	_ = conn.Close()
}

// dispatch decodes a frame and hands notifications to the handler.
func (m *Manager) dispatch(ctx context.Context, f Frame) {
	switch f.Event {
	case EventNotification:
		var rec model.Notification
		if err := json.Unmarshal(f.Data, &rec); err != nil {
			m.log.Debug().Err(err).Msg("dropping malformed notification frame")
			return
		}
		if ctx.Err() != nil {
			return
		}
		m.handler(rec)
	case "":
		m.log.Debug().Err(errors.New("frame without event")).Msg("dropping frame")
	default:
		m.log.Debug().Str("event", f.Event).Msg("ignoring unknown event")
	}
}
