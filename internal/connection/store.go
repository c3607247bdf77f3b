// Package connection tracks the request/accept/reject lifecycle between
// two users. A connection row is the security boundary for messaging:
// chat between two users is permitted if and only if a row with status
// connected exists for the pair.
//
// At most one row exists per unordered pair at any time. The schema
// enforces this with a unique index on (LEAST(user_a, user_b),
// GREATEST(user_a, user_b)), so two racing proposals cannot create
// symmetric duplicates. All transitions run inside a transaction with a
// row lock and fail closed.
package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Connection statuses.
const (
	StatusPending   = "pending"
	StatusConnected = "connected"
	StatusBlocked   = "blocked"
)

var (
	// ErrNotFound is returned when the connection row does not exist.
	ErrNotFound = errors.New("connection: not found")

	// ErrConflict is returned when a proposal targets a pair that
	// already has a row, or a transition runs against the wrong status.
	ErrConflict = errors.New("connection: already exists")

	// ErrUnauthorized is returned when the acting user is not permitted
	// to perform the transition.
	ErrUnauthorized = errors.New("connection: not permitted")
)

// Connection is one row of the connections table: the persisted
// relationship between an unordered pair of users. UserA is always the
// original requester.
type Connection struct {
	ID         string    `json:"id"`
	UserA      string    `json:"user_a"`
	UserB      string    `json:"user_b"`
	Status     string    `json:"status"`
	MatchScore float64   `json:"match_score"`
	CreatedAt  time.Time `json:"created_at"`
}

// Partner returns the other party's user ID, or "" if userID is not a party.
func (c *Connection) Partner(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return ""
}

// IsParty reports whether userID is one of the two users on the row.
func (c *Connection) IsParty(userID string) bool {
	return userID == c.UserA || userID == c.UserB
}

// Store manages connection rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a connection store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Propose creates a pending connection from one user to another, carrying
// the match score that prompted it. Returns ErrConflict if a row already
// exists for the pair in either direction; the unique pair index makes
// this safe under concurrent proposals.
func (s *Store) Propose(ctx context.Context, from, to string, score float64) (*Connection, error) {
	if from == to {
		return nil, fmt.Errorf("%w: cannot connect to self", ErrUnauthorized)
	}

	const query = `
		INSERT INTO connections (user_a, user_b, status, match_score)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	conn := &Connection{
		UserA:      from,
		UserB:      to,
		Status:     StatusPending,
		MatchScore: score,
	}
	err := s.db.QueryRowContext(ctx, query, from, to, StatusPending, score).
		Scan(&conn.ID, &conn.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("connection: propose: %w", err)
	}
	return conn, nil
}

// Accept transitions a pending connection to connected. Only the
// recipient (user_b) may accept. The row is locked for the duration of
// the transaction so a racing Remove cannot interleave.
func (s *Store) Accept(ctx context.Context, id, acceptingUser string) (*Connection, error) {
	var conn *Connection
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		locked, err := lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked.Status != StatusPending {
			return fmt.Errorf("%w: status is %s", ErrConflict, locked.Status)
		}
		if acceptingUser != locked.UserB {
			return fmt.Errorf("%w: only the recipient may accept", ErrUnauthorized)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE connections SET status = $1 WHERE id = $2`,
			StatusConnected, id)
		if err != nil {
			return fmt.Errorf("connection: accept update: %w", err)
		}
		locked.Status = StatusConnected
		conn = locked
		return nil
	})
	return conn, err
}

// Reject deletes a pending connection. Only the recipient may reject.
// Rejected requests leave no trace, so a later proposal for the same
// pair succeeds.
func (s *Store) Reject(ctx context.Context, id, rejectingUser string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		locked, err := lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked.Status != StatusPending {
			return fmt.Errorf("%w: status is %s", ErrConflict, locked.Status)
		}
		if rejectingUser != locked.UserB {
			return fmt.Errorf("%w: only the recipient may reject", ErrUnauthorized)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id); err != nil {
			return fmt.Errorf("connection: reject delete: %w", err)
		}
		return nil
	})
}

// Remove deletes a connection regardless of status. Either party may
// remove; chat access for the pair revokes with the row.
func (s *Store) Remove(ctx context.Context, id, requestingUser string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		locked, err := lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if !locked.IsParty(requestingUser) {
			return fmt.Errorf("%w: not a party to this connection", ErrUnauthorized)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id); err != nil {
			return fmt.Errorf("connection: remove delete: %w", err)
		}
		return nil
	})
}

// Get retrieves a connection by ID. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (*Connection, error) {
	const query = `
		SELECT id, user_a, user_b, status, match_score, created_at
		FROM connections
		WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// Between retrieves the connection for an unordered pair, in either
// direction. Returns ErrNotFound if no row exists.
func (s *Store) Between(ctx context.Context, a, b string) (*Connection, error) {
	const query = `
		SELECT id, user_a, user_b, status, match_score, created_at
		FROM connections
		WHERE (user_a = $1 AND user_b = $2) OR (user_a = $2 AND user_b = $1)`
	return s.scanOne(s.db.QueryRowContext(ctx, query, a, b))
}

// AreConnected reports whether a connected row exists for the pair. This
// is the messaging-access check; chat surfaces must call it server-side
// before allowing reads or writes.
func (s *Store) AreConnected(ctx context.Context, a, b string) (bool, error) {
	conn, err := s.Between(ctx, a, b)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conn.Status == StatusConnected, nil
}

// ListForUser returns all connections the user is a party to, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Connection, error) {
	const query = `
		SELECT id, user_a, user_b, status, match_score, created_at
		FROM connections
		WHERE user_a = $1 OR user_b = $1
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("connection: list: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ID, &c.UserA, &c.UserB, &c.Status, &c.MatchScore, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("connection: scan: %w", err)
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}

// PartnerStatuses returns, for every connection the user is a party to,
// the partner's user ID mapped to the row status. The match ranker uses
// this to drop candidates already pending or connected with the caller.
func (s *Store) PartnerStatuses(ctx context.Context, userID string) (map[string]string, error) {
	conns, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]string, len(conns))
	for _, c := range conns {
		statuses[c.Partner(userID)] = c.Status
	}
	return statuses, nil
}

// inTx runs fn inside a transaction, rolling back on any error so no
// partial transition is ever left behind.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("connection: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("connection: commit: %w", err)
	}
	return nil
}

// lockRow selects a connection row FOR UPDATE, serializing concurrent
// transitions against the same row.
func lockRow(ctx context.Context, tx *sql.Tx, id string) (*Connection, error) {
	const query = `
		SELECT id, user_a, user_b, status, match_score, created_at
		FROM connections
		WHERE id = $1
		FOR UPDATE`

	var c Connection
	err := tx.QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.UserA, &c.UserB, &c.Status, &c.MatchScore, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("connection: lock row: %w", err)
	}
	return &c, nil
}

func (s *Store) scanOne(row *sql.Row) (*Connection, error) {
	var c Connection
	err := row.Scan(&c.ID, &c.UserA, &c.UserB, &c.Status, &c.MatchScore, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("connection: query: %w", err)
	}
	return &c, nil
}
