package message

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the message package.
var ErrNotFound = errors.New("message not found")

// Message types. The server stores the type verbatim; it only defaults an
// absent type to text.
const (
	TypeText = "text"
	TypeFile = "file"
	TypeCall = "call"
)

// Pagination defaults.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Message holds the fields read from the messages table. Content and Nonce
// are ciphertext blobs produced by the sending client; the server never sees
// plaintext. Their JSON encoding is standard base64.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Type       string    `json:"type"`
	Content    []byte    `json:"content"`
	Nonce      []byte    `json:"nonce"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

// SaveParams groups the inputs for persisting a new message.
type SaveParams struct {
	SenderID   int64
	ReceiverID int64
	Type       string
	Content    []byte
	Nonce      []byte
}

// ClampLimit constrains a requested page size to [1, MaxLimit], defaulting
// to DefaultLimit when the input is zero or negative.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for message operations.
type Repository interface {
	// Save inserts a message and returns the stored record carrying the
	// database-assigned id and timestamp. An empty Type defaults to text.
	Save(ctx context.Context, params SaveParams) (*Message, error)

	// ListBetween returns messages exchanged between two users ordered by
	// timestamp descending. Never returns nil.
	ListBetween(ctx context.Context, a, b int64, limit, offset int) ([]Message, error)

	// MarkRead flags all unread messages from sender to receiver as read.
	// Matching zero rows is not an error.
	MarkRead(ctx context.Context, senderID, receiverID int64) error

	// DeleteBetween removes every message exchanged between two users, in
	// both directions.
	DeleteBetween(ctx context.Context, a, b int64) error
}
