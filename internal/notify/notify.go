// Package notify provides PostgreSQL-backed storage for user
// notifications plus best-effort realtime fan-out over NATS. Delivery is
// fire-and-forget: a notification failure never fails the state
// transition that produced it.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hertzfm/hertz/internal/messaging"
)

// Notification types, matching the CHECK-free type column by convention.
const (
	TypeConnectionRequest = "connection_request"
	TypeMatchAccepted     = "match_accepted"
)

// Notification is a single row delivered to a user's notification list.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Body      string    `json:"body"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages notification rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a notification store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a notification row.
func (s *Store) Create(ctx context.Context, n *Notification) error {
	const query = `
		INSERT INTO notifications (user_id, type, body, link)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, n.UserID, n.Type, n.Body, n.Link).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("notify: insert: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	const query = `
		SELECT id, user_id, type, body, link, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Body, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkRead flags a notification as read. Scoped to the owning user so
// one user cannot clear another's notifications.
func (s *Store) MarkRead(ctx context.Context, id int64, userID string) error {
	const query = `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND user_id = $2`
	if _, err := s.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	return nil
}

// Notifier persists notifications and pushes them to the recipient's
// NATS subject for any live realtime connection.
type Notifier struct {
	store *Store
	nats  *messaging.NATSClient
}

// NewNotifier creates a Notifier. The NATS client may be nil, in which
// case notifications are persisted without realtime fan-out.
func NewNotifier(store *Store, nats *messaging.NATSClient) *Notifier {
	return &Notifier{store: store, nats: nats}
}

// Send persists the notification and publishes it best-effort. Errors
// are logged, never returned: the caller's transition already happened.
func (n *Notifier) Send(ctx context.Context, userID, notifType, body, link string) {
	notif := &Notification{
		UserID: userID,
		Type:   notifType,
		Body:   body,
		Link:   link,
	}
	if err := n.store.Create(ctx, notif); err != nil {
		log.Printf("[notify] persist for %s: %v", userID, err)
		return
	}

	if n.nats == nil {
		return
	}
	data, err := json.Marshal(notif)
	if err != nil {
		log.Printf("[notify] marshal for %s: %v", userID, err)
		return
	}
	if err := n.nats.PublishNotification(userID, data); err != nil {
		log.Printf("[notify] publish for %s: %v", userID, err)
	}
}
