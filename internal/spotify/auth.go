// Package spotify links user accounts to Spotify and distills the
// listening data it exposes into explicit taste profiles.
package spotify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"

	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// ErrMissingCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is
// not set.
var ErrMissingCredentials = errors.New("spotify: missing SPOTIFY_ID or SPOTIFY_SECRET environment variable")

// Authenticator drives the server-side OAuth authorization code flow.
type Authenticator struct {
	auth *spotifyauth.Authenticator
}

// NewAuthenticator builds an Authenticator from SPOTIFY_ID and
// SPOTIFY_SECRET. The redirect URL must match one registered in the
// Spotify developer dashboard.
func NewAuthenticator(redirectURL string) (*Authenticator, error) {
	clientID := os.Getenv("SPOTIFY_ID")
	clientSecret := os.Getenv("SPOTIFY_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithRedirectURL(redirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserTopRead,
			spotifyauth.ScopeUserLibraryRead,
		),
	)
	return &Authenticator{auth: auth}, nil
}

// AuthURL returns the Spotify consent URL for the given state nonce.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Token completes the code exchange from the OAuth callback request.
func (a *Authenticator) Token(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error) {
	return a.auth.Token(ctx, state, r)
}

// Client returns an API client for the given token. The underlying
// oauth2 transport refreshes the access token as needed; RefreshedToken
// recovers the rotated token for re-persisting.
func (a *Authenticator) Client(ctx context.Context, tok *oauth2.Token) *spotifyapi.Client {
	return spotifyapi.New(a.auth.Client(ctx, tok), spotifyapi.WithRetry(true))
}

// RefreshedToken returns the client's current token, which may be newer
// than the one the client was built with.
func RefreshedToken(client *spotifyapi.Client) (*oauth2.Token, error) {
	return client.Token()
}

// GenerateState creates a random state nonce for the OAuth round trip.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
