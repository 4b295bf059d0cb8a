package gateway

import (
	"encoding/json"
	"time"

	"github.com/enclave-chat/enclave-server/internal/message"
)

// Envelope types sent to clients.
const (
	EnvelopeMessage       = "message"
	EnvelopePresence      = "presence"
	EnvelopeTyping        = "typing"
	EnvelopeReadReceipt   = "read_receipt"
	EnvelopeClearMessages = "clear_messages"
)

// Inbound frame types handled by the read pump. Call signaling frames are
// forwarded under the same type; only their data field travels on.
const (
	FrameTyping     = "typing"
	FrameCallOffer  = "call_offer"
	FrameCallAnswer = "call_answer"
	FrameCallICE    = "call_ice"
	FrameCallEnd    = "call_end"
)

// InboundFrame is the wire shape of a client-to-server WebSocket frame. The
// payload stays raw until the frame type is known.
type InboundFrame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Envelope is the wire shape of a server-to-client WebSocket frame. Content,
// Nonce, and Data serialise as base64 strings; Data holds the JSON bytes of
// a type-specific payload.
type Envelope struct {
	ID        int64  `json:"id,omitempty"`
	Type      string `json:"type"`
	From      int64  `json:"from,omitempty"`
	To        int64  `json:"to,omitempty"`
	Content   []byte `json:"content,omitempty"`
	Nonce     []byte `json:"nonce,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// PresenceData is carried in the data field of presence envelopes.
type PresenceData struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// ReadReceiptData is carried in the data field of read_receipt envelopes.
type ReadReceiptData struct {
	From int64 `json:"from"`
}

// targetPayload extracts the destination from typing payloads.
type targetPayload struct {
	To int64 `json:"to"`
}

// callPayload is the inbound shape of call signaling frames. Data stays raw;
// only it is forwarded to the callee.
type callPayload struct {
	To   int64           `json:"to"`
	Data json.RawMessage `json:"data"`
}

// NewMessageEnvelope wraps a persisted message for realtime delivery. The
// ciphertext and nonce are forwarded untouched.
func NewMessageEnvelope(m *message.Message) Envelope {
	return Envelope{
		ID:        m.ID,
		Type:      EnvelopeMessage,
		From:      m.SenderID,
		To:        m.ReceiverID,
		Content:   m.Content,
		Nonce:     m.Nonce,
		Timestamp: m.Timestamp.Unix(),
	}
}

// NewPresenceEnvelope announces a user going online or offline.
func NewPresenceEnvelope(userID int64, username string, online bool) Envelope {
	data, _ := json.Marshal(PresenceData{UserID: userID, Username: username, Online: online})
	return Envelope{
		Type:      EnvelopePresence,
		From:      userID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewTypingEnvelope forwards a typing indicator. The original payload bytes
// travel in the data field.
func NewTypingEnvelope(from int64, payload []byte) Envelope {
	return Envelope{
		Type:      EnvelopeTyping,
		From:      from,
		Data:      payload,
		Timestamp: time.Now().Unix(),
	}
}

// NewCallEnvelope forwards a WebRTC signaling blob. The blob is opaque to
// the server.
func NewCallEnvelope(frameType string, from int64, data []byte) Envelope {
	return Envelope{
		Type:      frameType,
		From:      from,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewReadReceiptEnvelope tells the original sender their messages were read.
func NewReadReceiptEnvelope(reader, sender int64) Envelope {
	data, _ := json.Marshal(ReadReceiptData{From: reader})
	return Envelope{
		Type:      EnvelopeReadReceipt,
		From:      reader,
		To:        sender,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewClearMessagesEnvelope tells the peer the conversation history was
// deleted.
func NewClearMessagesEnvelope(from, to int64) Envelope {
	return Envelope{
		Type:      EnvelopeClearMessages,
		From:      from,
		To:        to,
		Timestamp: time.Now().Unix(),
	}
}
