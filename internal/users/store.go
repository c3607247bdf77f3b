// Package users provides read access to the user directory: the pool of
// profiles the match ranker draws candidates from.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when no user exists for the given ID.
var ErrNotFound = errors.New("users: not found")

// User is one row of the user directory.
type User struct {
	ID          string
	DisplayName string
	AvatarURL   string
	Bio         string
	CreatedAt   time.Time
}

// Store reads and writes user directory rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a user store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a user row. The ID comes from the upstream auth system.
func (s *Store) Create(ctx context.Context, u *User) error {
	const query = `
		INSERT INTO users (id, display_name, avatar_url, bio)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query, u.ID, u.DisplayName, u.AvatarURL, u.Bio).
		Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

// Get retrieves a user by ID.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	const query = `
		SELECT id, display_name, avatar_url, bio, created_at
		FROM users
		WHERE id = $1`

	var u User
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.Bio, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return &u, nil
}

// GetMany retrieves the users for the given IDs, keyed by ID. Missing
// IDs are simply absent from the result.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]*User, error) {
	if len(ids) == 0 {
		return map[string]*User{}, nil
	}

	const query = `
		SELECT id, display_name, avatar_url, bio, created_at
		FROM users
		WHERE id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("users: get many: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*User, len(ids))
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.Bio, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		found[u.ID] = &u
	}
	return found, rows.Err()
}

// List pages through the directory excluding one user (the caller),
// ordered by creation time for a stable pagination cursor.
func (s *Store) List(ctx context.Context, excludeID string, limit, offset int) ([]*User, error) {
	const query = `
		SELECT id, display_name, avatar_url, bio, created_at
		FROM users
		WHERE id <> $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, excludeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.Bio, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
