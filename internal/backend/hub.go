package backend

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nhle/notification-sync/internal/channel"
	"github.com/nhle/notification-sync/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// peer is one WebSocket connection. It receives pushes only after its
// register frame has bound it to a user.
type peer struct {
	conn   *websocket.Conn
	send   chan channel.Frame
	authID string

	// userID is set by register; guarded by Hub.mu.
	userID string
}

// Hub tracks live push connections per user.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.RWMutex
	users map[string]map[*peer]struct{}
	peers map[*peer]struct{}
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:   log.With().Str("component", "hub").Logger(),
		users: make(map[string]map[*peer]struct{}),
		peers: make(map[*peer]struct{}),
	}
}

// Serve upgrades the request and runs the connection until it closes.
// authID is the authenticated user; register frames for anyone else are
// ignored.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, authID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	p := &peer{
		conn:   conn,
		send:   make(chan channel.Frame, sendBuffer),
		authID: authID,
	}
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(p)
	h.readLoop(p)
}

// readLoop handles inbound frames until the connection fails, then
// unregisters the peer.
func (h *Hub) readLoop(p *peer) {
	defer func() {
		h.drop(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(64 << 10)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f channel.Frame
		if err := p.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("user_id", p.authID).Msg("connection closed")
			}
			return
		}

		if f.Event != channel.EventRegister {
			h.log.Debug().Str("event", f.Event).Msg("ignoring frame")
			continue
		}

		var userID string
		if err := json.Unmarshal(f.Data, &userID); err != nil || userID == "" {
			h.log.Debug().Err(err).Msg("malformed register frame")
			continue
		}
		if userID != p.authID {
			h.log.Warn().Str("user_id", userID).Str("auth_id", p.authID).Msg("register for another user refused")
			continue
		}
		h.bind(p, userID)
	}
}

// writeLoop drains the peer's send queue and keeps the connection alive
// with pings.
func (h *Hub) writeLoop(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case f, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) bind(p *peer, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, live := h.peers[p]; !live {
		return
	}
	if p.userID != "" {
		delete(h.users[p.userID], p)
	}
	p.userID = userID
	set, ok := h.users[userID]
	if !ok {
		set = make(map[*peer]struct{})
		h.users[userID] = set
	}
	set[p] = struct{}{}
	h.log.Debug().Str("user_id", userID).Int("connections", len(set)).Msg("registered")
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, live := h.peers[p]; !live {
		return
	}
	delete(h.peers, p)
	if set, ok := h.users[p.userID]; ok {
		delete(set, p)
		if len(set) == 0 {
			delete(h.users, p.userID)
		}
	}
	close(p.send)
}

// Online reports how many registered connections userID has.
func (h *Hub) Online(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Publish pushes n to every registered connection of userID and returns
// how many connections it was queued on. A connection whose queue is full
// misses the push; its client recovers it on the next fetch.
func (h *Hub) Publish(userID string, n model.Notification) int {
	f, err := channel.NewFrame(channel.EventNotification, n)
	if err != nil {
		h.log.Error().Err(err).Msg("encoding push")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	queued := 0
	for p := range h.users[userID] {
		select {
		case p.send <- f:
			queued++
		default:
			h.log.Warn().Str("user_id", userID).Str("id", n.ID).Msg("push queue full, dropping")
		}
	}
	return queued
}

// Close ends every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.conn.Close()
	}
}
