package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/enclave-chat/enclave-server/internal/metrics"
	"github.com/enclave-chat/enclave-server/internal/user"
)

// Hub is the central WebSocket connection registry and envelope distributor.
// Clients register through channels serviced by a single Run goroutine; the
// connection map itself is guarded by a RWMutex so delivery paths can do
// concurrent lookups.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*Client

	register   chan *Client
	unregister chan *Client

	users      user.Repository
	queueDepth int
	metrics    *metrics.Set
	log        zerolog.Logger
}

// NewHub creates a new gateway hub. queueDepth sizes each client's send
// queue; met may be nil.
func NewHub(users user.Repository, queueDepth int, met *metrics.Set, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		users:      users,
		queueDepth: queueDepth,
		metrics:    met,
		log:        logger.With().Str("component", "gateway").Logger(),
	}
}

// Run services the register and unregister channels until the context is
// cancelled. It is the only goroutine that mutates the client map.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info().Msg("Gateway hub running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case client := <-h.register:
			h.handleRegister(ctx, client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		}
	}
}

// Register hands a client to the event loop.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister hands a client to the event loop.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// handleRegister inserts a client, displacing any previous connection for
// the same user. The newcomer receives a presence snapshot of everyone
// already online; everyone else learns the newcomer is online. Displacement
// deliberately skips the offline broadcast so a reconnect is invisible to
// peers.
func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	h.mu.Lock()
	if existing, ok := h.clients[c.userID]; ok {
		h.log.Debug().Int64("user_id", c.userID).Str("conn_id", existing.connID).
			Msg("Displacing existing connection")
		delete(h.clients, c.userID)
		existing.closeSend()
	}

	// Snapshot of who is already online, taken before the newcomer joins.
	others := make([]*Client, 0, len(h.clients))
	for _, other := range h.clients {
		others = append(others, other)
	}

	h.clients[c.userID] = c
	total := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionsActive.Set(float64(total))
	}

	for _, other := range others {
		c.enqueueEnvelope(NewPresenceEnvelope(other.userID, other.username, true))
	}
	h.broadcastPresence(c, NewPresenceEnvelope(c.userID, c.username, true))
	h.touchLastSeen(ctx, c.userID)

	h.log.Info().Int64("user_id", c.userID).Str("conn_id", c.connID).
		Int("total", total).Msg("Client registered")
}

// handleUnregister removes a client and announces the user offline, but only
// when the map still holds this exact client. A stale socket closing after a
// reconnect must never mark the user offline.
func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.userID]
	if !ok || current != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.userID)
	total := len(h.clients)
	h.mu.Unlock()

	c.closeSend()

	if h.metrics != nil {
		h.metrics.ConnectionsActive.Set(float64(total))
	}

	h.broadcastPresence(c, NewPresenceEnvelope(c.userID, c.username, false))

	h.log.Info().Int64("user_id", c.userID).Str("conn_id", c.connID).
		Int("total", total).Msg("Client unregistered")
}

// SendMessage delivers an envelope to a user's live connection. Delivery is
// best-effort and never blocks: an absent receiver or a full send queue
// drops the envelope with a log entry.
func (h *Hub) SendMessage(to int64, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("type", env.Type).Msg("Failed to marshal envelope")
		return
	}

	h.mu.RLock()
	c, ok := h.clients[to]
	h.mu.RUnlock()

	if !ok {
		h.log.Debug().Int64("to", to).Str("type", env.Type).Msg("Receiver offline, envelope dropped")
		return
	}
	if !c.enqueue(payload) {
		if h.metrics != nil {
			h.metrics.FramesDropped.Inc()
		}
		h.log.Warn().Int64("to", to).Str("type", env.Type).
			Msg("Send queue full, envelope dropped")
	}
}

// broadcastPresence fans an envelope out to every client except the subject.
func (h *Hub) broadcastPresence(subject *Client, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal presence envelope")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != subject.userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(payload) {
			if h.metrics != nil {
				h.metrics.FramesDropped.Inc()
			}
			h.log.Warn().Int64("to", c.userID).Msg("Send queue full, presence dropped")
		}
	}
}

// IsOnline reports whether the user has a live connection.
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUsers returns the ids of all connected users.
func (h *Hub) OnlineUsers() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int64, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every active connection with a going-away frame.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, c := range h.clients {
		c.closeSend()
		if c.conn != nil {
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait),
			)
			_ = c.conn.Close()
		}
		delete(h.clients, userID)
	}

	if h.metrics != nil {
		h.metrics.ConnectionsActive.Set(0)
	}
	h.log.Info().Msg("Gateway hub shut down")
}

// touchLastSeen records the connect time on the user row. Connecting is the
// only hub event that refreshes it.
func (h *Hub) touchLastSeen(ctx context.Context, userID int64) {
	if h.users == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.users.UpdateLastSeen(opCtx, userID); err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to update last seen")
	}
}
