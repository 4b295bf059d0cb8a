package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before the read deadline fires.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so pings keep the deadline
	// extended.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size in bytes of a single inbound frame.
	maxMessageSize = 64 * 1024
)

// Client represents a single authenticated WebSocket connection. Each client
// runs two goroutines, readPump and writePump, and is handed envelopes by
// the Hub via its send channel.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	userID   int64
	username string
	// connID distinguishes sockets of the same user in logs across
	// reconnects.
	connID string

	closeOnce sync.Once
	log       zerolog.Logger
}

// NewClient wraps an upgraded connection for the given user.
func NewClient(hub *Hub, conn *websocket.Conn, userID int64, username string) *Client {
	connID := uuid.NewString()
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.queueDepth),
		userID:   userID,
		username: username,
		connID:   connID,
		log: hub.log.With().
			Int64("user_id", userID).
			Str("conn_id", connID).
			Logger(),
	}
}

// ServeWebSocket registers a new client and runs its pumps. It blocks until
// the connection is closed.
func (h *Hub) ServeWebSocket(conn *websocket.Conn, userID int64, username string) {
	client := NewClient(h, conn, userID, username)
	h.Register(client)
	go client.writePump()
	client.readPump()
}

// enqueue attempts a non-blocking send. It reports false when the queue is
// full; slow consumers shed load instead of stalling the hub.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// enqueueEnvelope marshals and enqueues an envelope, used during
// registration before the write pump is necessarily draining.
func (c *Client) enqueueEnvelope(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		c.log.Error().Err(err).Str("type", env.Type).Msg("Failed to marshal envelope")
		return
	}
	if !c.enqueue(payload) {
		c.log.Warn().Str("type", env.Type).Msg("Send queue full, envelope dropped")
	}
}

// closeSend closes the send channel exactly once, which makes the write
// pump exit with a close frame.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump reads frames from the connection and routes them through
// handleFrame. It runs in its own goroutine and unregisters the client when
// the read loop exits.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		if c.hub.metrics != nil {
			c.hub.metrics.FramesIn.Inc()
		}

		c.handleFrame(raw)
	}
}

// handleFrame parses one inbound frame and relays it to the peer named in
// its payload. Unparseable and unknown frames are ignored; a bad frame is
// not worth severing the connection over.
func (c *Client) handleFrame(raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.Debug().Err(err).Msg("Ignoring unparseable frame")
		return
	}

	switch frame.Type {
	case FrameTyping:
		// The whole payload travels on so the receiver sees {to, typing}.
		var target targetPayload
		if err := json.Unmarshal(frame.Payload, &target); err != nil || target.To == 0 {
			c.log.Debug().Str("type", frame.Type).Msg("Ignoring frame without valid target")
			return
		}
		c.hub.SendMessage(target.To, NewTypingEnvelope(c.userID, frame.Payload))
	case FrameCallOffer, FrameCallAnswer, FrameCallICE, FrameCallEnd:
		// Only the inner data field travels on; the receiver parses it
		// directly as the SDP or ICE candidate blob.
		var p callPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.To == 0 {
			c.log.Debug().Str("type", frame.Type).Msg("Ignoring frame without valid target")
			return
		}
		c.hub.SendMessage(p.To, NewCallEnvelope(frame.Type, c.userID, p.Data))
	default:
		c.log.Debug().Str("type", frame.Type).Msg("Ignoring unknown frame type")
	}
}

// writePump writes queued envelopes and periodic pings to the connection. It
// exits when the send channel closes or a write fails; the read pump then
// observes the dead socket and unregisters.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
