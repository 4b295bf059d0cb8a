package message

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// selectColumns lists the columns returned by queries that produce a *Message.
const selectColumns = `id, sender_id, receiver_id, type, content, nonce, timestamp, read`

// SQLRepository implements Repository over the embedded SQLite store.
type SQLRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQLite-backed message repository.
func NewSQLRepository(db *sql.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// Save inserts a message and reads it back so the caller sees the assigned
// id and server timestamp. Timestamps are assigned at insert by the single
// writer, which keeps them monotone non-decreasing per conversation.
func (r *SQLRepository) Save(ctx context.Context, params SaveParams) (*Message, error) {
	msgType := params.Type
	if msgType == "" {
		msgType = TypeText
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO messages (sender_id, receiver_id, type, content, nonce) VALUES (?, ?, ?, ?, ?)",
		params.SenderID, params.ReceiverID, msgType, params.Content, params.Nonce,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	msg, err := scanMessage(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM messages WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read back message: %w", err)
	}
	return msg, nil
}

// ListBetween returns messages exchanged between two users, newest first.
func (r *SQLRepository) ListBetween(ctx context.Context, a, b int64, limit, offset int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+`
		 FROM messages
		 WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ? OFFSET ?`,
		a, b, b, a, ClampLimit(limit), offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.SenderID, &m.ReceiverID, &m.Type,
			&m.Content, &m.Nonce, &m.Timestamp, &m.Read,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkRead flags all unread messages from sender to receiver as read.
func (r *SQLRepository) MarkRead(ctx context.Context, senderID, receiverID int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE messages SET read = TRUE WHERE sender_id = ? AND receiver_id = ? AND read = FALSE",
		senderID, receiverID,
	)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// DeleteBetween removes every message exchanged between two users.
func (r *SQLRepository) DeleteBetween(ctx context.Context, a, b int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM messages WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		a, b, b, a,
	)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// scanMessage scans a single row into a *Message.
func scanMessage(row *sql.Row) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.Type,
		&m.Content, &m.Nonce, &m.Timestamp, &m.Read,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
