package spotify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when a user has never linked a Spotify account
// or has since unlinked it.
var ErrNoToken = errors.New("spotify: no token on file")

// TokenStore persists OAuth tokens in Postgres so profile refreshes can
// run without the user present.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a TokenStore backed by the given database handle.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Save upserts the token for a user. Spotify rotates refresh tokens only
// occasionally; if the new token carries an empty refresh token the
// previously stored one is kept.
func (s *TokenStore) Save(ctx context.Context, userID string, tok *oauth2.Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spotify_tokens (user_id, access_token, refresh_token, expiry, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = ''
			                     THEN spotify_tokens.refresh_token
			                     ELSE EXCLUDED.refresh_token END,
			expiry        = EXCLUDED.expiry,
			updated_at    = NOW()`,
		userID, tok.AccessToken, tok.RefreshToken, tok.Expiry)
	if err != nil {
		return fmt.Errorf("spotify: save token: %w", err)
	}
	return nil
}

// Load returns the stored token for a user, or ErrNoToken.
func (s *TokenStore) Load(ctx context.Context, userID string) (*oauth2.Token, error) {
	tok := &oauth2.Token{TokenType: "Bearer"}
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expiry
		FROM spotify_tokens WHERE user_id = $1`,
		userID).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.Expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("spotify: load token: %w", err)
	}
	return tok, nil
}

// Delete removes a user's token. Missing rows are not an error.
func (s *TokenStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM spotify_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("spotify: delete token: %w", err)
	}
	return nil
}
