// Package history provides append-only storage for listening events and
// the song catalog rows they reference. Listening history is the raw
// signal behind implicit taste signatures: the playback client reports a
// play once the user has listened past the engagement threshold, or when
// the track ends.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hertzfm/hertz/internal/taste"
)

// EngagementThreshold is the continuous listening time that counts as an
// engaged play. Events below it that did not reach track-end are noise
// and are not recorded.
const EngagementThreshold = 30 * time.Second

// ErrNotEngaged is returned when an event is below the engagement
// threshold and the track did not complete.
var ErrNotEngaged = errors.New("history: play below engagement threshold")

// Song is a catalog row. Provider tracks are upserted by external ID on
// first play; locally uploaded tracks carry none and are matched on
// title and artist.
type Song struct {
	ID         string
	Title      string
	Artist     string
	Genre      string
	URL        string
	CoverURL   string
	Duration   int
	Origin     string
	ExternalID string
}

// Event is one listening observation.
type Event struct {
	ID               int64
	UserID           string
	SongID           string
	ListenedAt       time.Time
	DurationListened int
	Completed        bool
}

// Store manages listening history and song catalog rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a history store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertSong inserts a catalog track, returning the canonical song row
// ID. Provider-sourced tracks are keyed by external ID and re-upserting
// refreshes the metadata. Local tracks have no external identity: they
// are matched on title and artist, and inserted fresh when unseen.
func (s *Store) UpsertSong(ctx context.Context, song *Song) (string, error) {
	if song.ExternalID == "" {
		return s.upsertLocalSong(ctx, song)
	}

	const query = `
		INSERT INTO songs (title, artist, genre, url, cover_url, duration, origin, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_id) WHERE external_id IS NOT NULL DO UPDATE SET
			title = EXCLUDED.title,
			artist = EXCLUDED.artist,
			genre = EXCLUDED.genre,
			cover_url = EXCLUDED.cover_url
		RETURNING id`

	var id string
	err := s.db.QueryRowContext(ctx, query,
		song.Title, song.Artist, song.Genre, song.URL,
		song.CoverURL, song.Duration, song.Origin, song.ExternalID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("history: upsert song: %w", err)
	}
	return id, nil
}

// upsertLocalSong reuses an existing local row with the same title and
// artist, never updating its metadata. Two concurrent first plays of
// the same track can each insert a row; the duplicate is harmless.
func (s *Store) upsertLocalSong(ctx context.Context, song *Song) (string, error) {
	const find = `
		SELECT id FROM songs
		WHERE external_id IS NULL AND title = $1 AND artist = $2
		LIMIT 1`

	var id string
	err := s.db.QueryRowContext(ctx, find, song.Title, song.Artist).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("history: find local song: %w", err)
	}

	const insert = `
		INSERT INTO songs (title, artist, genre, url, cover_url, duration, origin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err = s.db.QueryRowContext(ctx, insert,
		song.Title, song.Artist, song.Genre, song.URL,
		song.CoverURL, song.Duration, song.Origin,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("history: insert local song: %w", err)
	}
	return id, nil
}

// Record appends a listening event. Events below the engagement
// threshold that did not complete return ErrNotEngaged and are dropped.
func (s *Store) Record(ctx context.Context, e *Event) error {
	if !e.Completed && time.Duration(e.DurationListened)*time.Second < EngagementThreshold {
		return ErrNotEngaged
	}

	const query = `
		INSERT INTO listening_history (user_id, song_id, duration_listened, completed)
		VALUES ($1, $2, $3, $4)
		RETURNING id, listened_at`

	err := s.db.QueryRowContext(ctx, query,
		e.UserID, e.SongID, e.DurationListened, e.Completed,
	).Scan(&e.ID, &e.ListenedAt)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// PlaysByUser returns the user's listening history joined to the song
// catalog as (genre, artist) plays, newest first, ready for signature
// extraction. An empty history yields an empty slice, not an error.
func (s *Store) PlaysByUser(ctx context.Context, userID string, limit int) ([]taste.Play, error) {
	const query = `
		SELECT s.genre, s.artist
		FROM listening_history h
		JOIN songs s ON s.id = h.song_id
		WHERE h.user_id = $1
		ORDER BY h.listened_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: plays by user: %w", err)
	}
	defer rows.Close()

	var plays []taste.Play
	for rows.Next() {
		var p taste.Play
		if err := rows.Scan(&p.Genre, &p.Artist); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}
