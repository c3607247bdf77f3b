// Package musicprofile persists explicit taste profiles built from a
// linked music service. A profile row is overwritten wholesale on each
// successful linkage or refresh.
//
// The validity gate lives here: a profile with zero artists and an empty
// genre vector must never be persisted as linked, because an empty
// linked profile silently zeroes all future explicit matching for that
// user.
package musicprofile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hertzfm/hertz/internal/taste"
)

var (
	// ErrNotFound is returned when the user has no profile row.
	ErrNotFound = errors.New("musicprofile: not found")

	// ErrInvalidProfile is returned when a profile carries no artists
	// and no genre data. Callers surface it as a partial failure of the
	// linkage flow, not a hard error.
	ErrInvalidProfile = errors.New("musicprofile: profile has no artists and no genre data")
)

// Record is one persisted profile row.
type Record struct {
	UserID          string
	Profile         taste.Profile
	IsSpotifyLinked bool
	LastUpdated     time.Time
}

// Store manages music profile rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a profile store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert overwrites the user's profile wholesale and marks the account
// linked. Returns ErrInvalidProfile without writing anything when the
// profile fails the validity gate.
func (s *Store) Upsert(ctx context.Context, userID string, p taste.Profile) error {
	if p.IsEmpty() {
		return ErrInvalidProfile
	}

	artists, err := json.Marshal(p.TopArtists)
	if err != nil {
		return fmt.Errorf("musicprofile: marshal artists: %w", err)
	}
	genres, err := json.Marshal(p.TopGenres)
	if err != nil {
		return fmt.Errorf("musicprofile: marshal genres: %w", err)
	}
	vector, err := json.Marshal(p.GenreVector)
	if err != nil {
		return fmt.Errorf("musicprofile: marshal vector: %w", err)
	}

	const query = `
		INSERT INTO music_profiles (user_id, top_artists, top_genres, genre_vector, is_spotify_linked, last_updated)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			top_artists = EXCLUDED.top_artists,
			top_genres = EXCLUDED.top_genres,
			genre_vector = EXCLUDED.genre_vector,
			is_spotify_linked = TRUE,
			last_updated = NOW()`

	if _, err := s.db.ExecContext(ctx, query, userID, artists, genres, vector); err != nil {
		return fmt.Errorf("musicprofile: upsert: %w", err)
	}
	return nil
}

// Unlink clears the linked flag, keeping the stale profile data for
// display but excluding the user from explicit matching.
func (s *Store) Unlink(ctx context.Context, userID string) error {
	const query = `
		UPDATE music_profiles SET is_spotify_linked = FALSE, last_updated = NOW()
		WHERE user_id = $1`
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("musicprofile: unlink: %w", err)
	}
	return nil
}

// Get retrieves a user's profile row.
func (s *Store) Get(ctx context.Context, userID string) (*Record, error) {
	const query = `
		SELECT user_id, top_artists, top_genres, genre_vector, is_spotify_linked, last_updated
		FROM music_profiles
		WHERE user_id = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetMany retrieves linked profiles for the given user IDs, keyed by
// user ID. Users without a linked profile are absent from the result, so
// explicit scoring naturally degrades to zero for them.
func (s *Store) GetMany(ctx context.Context, userIDs []string) (map[string]*Record, error) {
	if len(userIDs) == 0 {
		return map[string]*Record{}, nil
	}

	const query = `
		SELECT user_id, top_artists, top_genres, genre_vector, is_spotify_linked, last_updated
		FROM music_profiles
		WHERE user_id = ANY($1) AND is_spotify_linked`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("musicprofile: get many: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*Record)
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		found[rec.UserID] = rec
	}
	return found, rows.Err()
}

// ListLinkedIDs returns the IDs of all users with a linked profile, for
// the background refresh worker.
func (s *Store) ListLinkedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM music_profiles WHERE is_spotify_linked`)
	if err != nil {
		return nil, fmt.Errorf("musicprofile: list linked: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("musicprofile: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*Record, error) {
	rec, err := scanFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanRecordRows(rows *sql.Rows) (*Record, error) {
	return scanFrom(rows)
}

func scanFrom(sc rowScanner) (*Record, error) {
	var (
		rec     Record
		artists []byte
		genres  []byte
		vector  []byte
	)
	err := sc.Scan(&rec.UserID, &artists, &genres, &vector, &rec.IsSpotifyLinked, &rec.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("musicprofile: scan: %w", err)
	}

	if err := json.Unmarshal(artists, &rec.Profile.TopArtists); err != nil {
		return nil, fmt.Errorf("musicprofile: decode artists: %w", err)
	}
	if err := json.Unmarshal(genres, &rec.Profile.TopGenres); err != nil {
		return nil, fmt.Errorf("musicprofile: decode genres: %w", err)
	}
	if err := json.Unmarshal(vector, &rec.Profile.GenreVector); err != nil {
		return nil, fmt.Errorf("musicprofile: decode vector: %w", err)
	}
	return &rec, nil
}
