// Package chat provides PostgreSQL-backed direct messages between
// connected users. Every read and write re-checks the connection gate
// server-side: messaging between two users is permitted if and only if a
// connected row exists for the pair. The check is a security boundary
// and is never skipped for trusted callers.
package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hertzfm/hertz/internal/connection"
	"github.com/hertzfm/hertz/internal/messaging"
	"github.com/hertzfm/hertz/internal/metrics"
)

// ErrNotConnected is returned when the two users have no connected
// relationship.
var ErrNotConnected = errors.New("chat: users are not connected")

// Message is one direct message row.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is the NATS payload relayed to the recipient's realtime
// connection when a message is sent.
type Event struct {
	From    string `json:"from"`
	Content string `json:"content"`
	Ts      int64  `json:"ts"`
}

// Store manages messages in PostgreSQL, gated by connection state.
type Store struct {
	db    *sql.DB
	conns *connection.Store
	nats  *messaging.NATSClient
}

// NewStore creates a chat store. The NATS client may be nil; realtime
// relay is then skipped and messages are only persisted.
func NewStore(db *sql.DB, conns *connection.Store, nats *messaging.NATSClient) *Store {
	return &Store{db: db, conns: conns, nats: nats}
}

// Send validates and persists a message from one user to another.
// Returns ErrNotConnected unless a connected row exists for the pair.
// On success the message is relayed best-effort to the recipient's
// realtime subject.
func (s *Store) Send(ctx context.Context, from, to, content string) (*Message, error) {
	if err := ValidateMessage(content); err != nil {
		return nil, err
	}

	ok, err := s.conns.AreConnected(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("chat: connection check: %w", err)
	}
	if !ok {
		metrics.MessagesTotal.WithLabelValues("gated").Inc()
		return nil, ErrNotConnected
	}

	const query = `
		INSERT INTO messages (sender_id, receiver_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	msg := &Message{SenderID: from, ReceiverID: to, Content: content}
	if err := s.db.QueryRowContext(ctx, query, from, to, content).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("chat: insert: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	s.relay(msg)
	return msg, nil
}

// History returns the conversation between two users in chronological
// order. The caller must be one of the parties and the pair must be
// connected; access revokes the moment the connection row disappears.
func (s *Store) History(ctx context.Context, me, other string, limit int) ([]*Message, error) {
	ok, err := s.conns.AreConnected(ctx, me, other)
	if err != nil {
		return nil, fmt.Errorf("chat: connection check: %w", err)
	}
	if !ok {
		return nil, ErrNotConnected
	}

	const query = `
		SELECT id, sender_id, receiver_id, content, is_read, created_at
		FROM (
			SELECT id, sender_id, receiver_id, content, is_read, created_at
			FROM messages
			WHERE (sender_id = $1 AND receiver_id = $2)
			   OR (sender_id = $2 AND receiver_id = $1)
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, me, other, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: history: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// MarkRead flags all messages from the other user to me as read.
func (s *Store) MarkRead(ctx context.Context, me, other string) error {
	const query = `
		UPDATE messages SET is_read = TRUE
		WHERE receiver_id = $1 AND sender_id = $2 AND NOT is_read`
	if _, err := s.db.ExecContext(ctx, query, me, other); err != nil {
		return fmt.Errorf("chat: mark read: %w", err)
	}
	return nil
}

// relay publishes the message to the recipient's realtime subject.
// Best-effort: the message is already persisted.
func (s *Store) relay(msg *Message) {
	if s.nats == nil {
		return
	}
	data, err := json.Marshal(Event{
		From:    msg.SenderID,
		Content: msg.Content,
		Ts:      msg.CreatedAt.Unix(),
	})
	if err != nil {
		log.Printf("[chat] marshal event: %v", err)
		return
	}
	if err := s.nats.PublishChatMessage(msg.ReceiverID, data); err != nil {
		log.Printf("[chat] relay to %s: %v", msg.ReceiverID, err)
	}
}
