package sync

import (
	"context"
	gosync "sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/notification-sync/internal/channel"
	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/store"
)

// Gateway is the read-model surface the session calls. *gateway.Client
// implements it.
type Gateway interface {
	FetchAll(ctx context.Context, userID string) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, userID string) (gateway.Ack, error)
	MarkAllRead(ctx context.Context, userID string) (gateway.Ack, error)
	Send(ctx context.Context, req gateway.SendRequest) (gateway.Ack, error)
}

// ChangedMsg is a tea.Msg sent after the store changed. Consecutive changes
// are coalesced into one message.
type ChangedMsg struct{}

// ReceivedMsg is a tea.Msg sent for every pushed record that was new to the
// store.
type ReceivedMsg struct {
	Record model.Notification
}

// SelectedMsg is a tea.Msg sent when a selection completed, immediately or
// after the target arrived.
type SelectedMsg struct {
	ID string
}

// NoticeMsg is a tea.Msg reporting the outcome of a gateway call the user
// should hear about: every failure, and the result of a send.
type NoticeMsg struct {
	Op      string
	Message string
	Err     error
}

// callTimeout bounds a single gateway call.
const callTimeout = 30 * time.Second

// Options configures a Session.
type Options struct {
	UserID  string
	Gateway Gateway
	Channel channel.Options
	Logger  zerolog.Logger
}

// Session owns the notification state of one authenticated user: the store,
// the push channel feeding it and the gateway calls issued on behalf of the
// consumers.
type Session struct {
	userID  string
	gateway Gateway
	store   *store.Store
	channel *channel.Manager
	log     zerolog.Logger

	events        chan tea.Msg
	changePending atomic.Bool
	stopCh        chan struct{}
	stopOnce      gosync.Once
	unsubscribe   func()
	inflight      gosync.WaitGroup

	// mu orders selection against load and ingest so a deferred selection
	// cannot miss its target.
	mu      gosync.Mutex
	pending string
	closed  bool
}

// New creates a session for opts.UserID. Nothing happens until Start.
func New(opts Options) *Session {
	s := &Session{
		userID:  opts.UserID,
		gateway: opts.Gateway,
		store:   store.New(),
		log:     opts.Logger.With().Str("component", "sync").Str("user_id", opts.UserID).Logger(),
		events:  make(chan tea.Msg, 64),
		stopCh:  make(chan struct{}),
	}

	chOpts := opts.Channel
	chOpts.Logger = opts.Logger
	s.channel = channel.NewManager(chOpts, s.onPush)

	sub, unsubscribe := s.store.Subscribe()
	s.unsubscribe = unsubscribe
	go s.forwardChanges(sub)

	return s
}

// Store exposes the read side of the session's store.
func (s *Session) Store() store.Reader {
	return s.store
}

// UserID returns the session user.
func (s *Session) UserID() string {
	return s.userID
}

// Status returns the push channel state.
func (s *Session) Status() channel.State {
	return s.channel.State()
}

// Pending returns the deep-link target still waiting to appear, if any.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Start bootstraps the store from the gateway and connects the push
// channel. The channel is connected even when the bootstrap fails; the
// failure is reported as a NoticeMsg and returned.
func (s *Session) Start(ctx context.Context) error {
	err := s.load(ctx, "load notifications")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.channel.Connect(s.userID)
	}
	return err
}

// Refresh reloads the full list from the gateway, replacing the store.
func (s *Session) Refresh(ctx context.Context) error {
	return s.load(ctx, "refresh notifications")
}

func (s *Session) load(ctx context.Context, op string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	records, err := s.gateway.FetchAll(ctx, s.userID)
	if err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("bulk load failed")
		s.emit(NoticeMsg{Op: op, Err: err})
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if dropped := s.store.Load(records); dropped > 0 {
		s.log.Debug().Int("dropped", dropped).Msg("dropped duplicate or anonymous records")
	}
	s.log.Info().Int("records", s.store.Len()).Int("unread", s.store.UnreadCount()).Msg("notifications loaded")
	s.resolvePendingLocked()
	return nil
}

// onPush runs on the channel reader goroutine.
func (s *Session) onPush(rec model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	added, err := s.store.Ingest(rec)
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping pushed record")
		return
	}
	if !added {
		s.log.Debug().Str("id", rec.ID).Msg("duplicate push ignored")
		return
	}

	s.emit(ReceivedMsg{Record: rec})
	s.resolvePendingLocked()
}

// Select runs the selection path for id: an unread record is marked read
// locally and on the server. An id that is not present yet becomes the
// pending target and is selected as soon as a load or push brings it in.
// A later Select replaces it.
func (s *Session) Select(id string) {
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if !s.store.Has(id) {
		s.log.Debug().Str("id", id).Msg("selection deferred")
		s.pending = id
		return
	}
	s.pending = ""
	s.selectLocked(id)
}

func (s *Session) resolvePendingLocked() {
	if s.pending == "" || !s.store.Has(s.pending) {
		return
	}
	id := s.pending
	s.pending = ""
	s.log.Debug().Str("id", id).Msg("deferred selection resolved")
	s.selectLocked(id)
}

func (s *Session) selectLocked(id string) {
	if s.store.MarkReadLocal(id) {
		s.call("mark read", func(ctx context.Context) (gateway.Ack, error) {
			return s.gateway.MarkRead(ctx, id, s.userID)
		}, false)
	}
	s.emit(SelectedMsg{ID: id})
}

// MarkAllRead marks every record read locally and issues one bulk gateway
// call.
func (s *Session) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	n := s.store.MarkAllReadLocal()
	s.log.Debug().Int("marked", n).Msg("mark all read")
	s.call("mark all read", func(ctx context.Context) (gateway.Ack, error) {
		return s.gateway.MarkAllRead(ctx, s.userID)
	}, false)
}

// Send sends a notification as the session user. The result arrives as a
// NoticeMsg.
func (s *Session) Send(req gateway.SendRequest) {
	if req.SenderID == "" {
		req.SenderID = s.userID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.call("send notification", func(ctx context.Context) (gateway.Ack, error) {
		return s.gateway.Send(ctx, req)
	}, true)
}

// call runs fn on its own goroutine. Calls are never cancelled by the
// session; each one is bounded by callTimeout.
func (s *Session) call(op string, fn func(context.Context) (gateway.Ack, error), reportSuccess bool) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()

		ack, err := fn(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("op", op).Msg("gateway call failed")
			s.emit(NoticeMsg{Op: op, Err: err})
			return
		}
		if reportSuccess {
			s.emit(NoticeMsg{Op: op, Message: ack.Message})
		}
	}()
}

// Wait blocks until every gateway call issued so far has finished.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Close ends the session: the channel is disconnected, the store cleared
// and any pending selection dropped. Gateway calls already in flight are
// left to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = ""
	s.mu.Unlock()

	s.channel.Disconnect()
	s.store.Clear()
	s.unsubscribe()
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.log.Info().Msg("session closed")
}

func (s *Session) forwardChanges(sub <-chan struct{}) {
	for {
		select {
		case <-s.stopCh:
			return
		case <-sub:
			if s.changePending.CompareAndSwap(false, true) {
				s.emit(ChangedMsg{})
			}
		}
	}
}

// emit sends msg on the event channel without blocking.
func (s *Session) emit(msg tea.Msg) {
	select {
	case s.events <- msg:
	default:
		if _, ok := msg.(ChangedMsg); ok {
			s.changePending.Store(false)
		}
		s.log.Warn().Type("msg", msg).Msg("event channel full, dropping message")
	}
}

// WaitForNext returns a tea.Cmd that waits for the next session event. Call
// it again after handling each event to keep listening.
func (s *Session) WaitForNext() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-s.events:
			if _, ok := msg.(ChangedMsg); ok {
				s.changePending.Store(false)
			}
			return msg
		case <-s.stopCh:
			return nil
		}
	}
}
