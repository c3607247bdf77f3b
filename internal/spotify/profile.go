package spotify

import (
	"context"
	"errors"
	"fmt"
	"log"

	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/hertzfm/hertz/internal/metrics"
	"github.com/hertzfm/hertz/internal/musicprofile"
	"github.com/hertzfm/hertz/internal/taste"
)

const (
	pageLimit      = 50 // max items per Spotify page request
	artistBatchMax = 50 // max IDs per GetArtists call
)

// Syncer pulls a user's listening data from Spotify and stores the
// resulting taste profile.
type Syncer struct {
	auth     *Authenticator
	tokens   *TokenStore
	profiles *musicprofile.Store
}

// NewSyncer assembles a Syncer.
func NewSyncer(auth *Authenticator, tokens *TokenStore, profiles *musicprofile.Store) *Syncer {
	return &Syncer{auth: auth, tokens: tokens, profiles: profiles}
}

// Sync rebuilds the explicit taste profile for one linked user. Returns
// ErrNoToken when the user is not linked, and
// musicprofile.ErrInvalidProfile when the account exposes no usable
// listening data; in the latter case nothing is persisted, so a stale
// profile survives a temporarily empty library.
func (s *Syncer) Sync(ctx context.Context, userID string) error {
	tok, err := s.tokens.Load(ctx, userID)
	if err != nil {
		return err
	}

	client := s.auth.Client(ctx, tok)

	artists, err := s.fetchArtists(ctx, client)
	if err != nil {
		metrics.SpotifySyncs.WithLabelValues("error").Inc()
		return fmt.Errorf("spotify: fetch artists for %s: %w", userID, err)
	}

	profile := taste.BuildExplicitProfile(artists)
	if err := s.profiles.Upsert(ctx, userID, profile); err != nil {
		if errors.Is(err, musicprofile.ErrInvalidProfile) {
			metrics.SpotifySyncs.WithLabelValues("empty").Inc()
		} else {
			metrics.SpotifySyncs.WithLabelValues("error").Inc()
		}
		return err
	}
	metrics.SpotifySyncs.WithLabelValues("ok").Inc()

	// The oauth2 transport may have rotated the access token under us.
	if fresh, err := RefreshedToken(client); err == nil && fresh.AccessToken != tok.AccessToken {
		if err := s.tokens.Save(ctx, userID, fresh); err != nil {
			log.Printf("[spotify] persist refreshed token for %s: %v", userID, err)
		}
	}
	return nil
}

// fetchArtists resolves the user's top artists, falling back through
// progressively weaker signals: the top-artists endpoint, then the
// artists behind their top tracks, then the artists behind their saved
// library. New accounts often have nothing but a library.
func (s *Syncer) fetchArtists(ctx context.Context, client *spotifyapi.Client) ([]taste.Artist, error) {
	top, err := client.CurrentUsersTopArtists(ctx, spotifyapi.Limit(pageLimit))
	if err != nil {
		return nil, fmt.Errorf("top artists: %w", err)
	}
	if len(top.Artists) > 0 {
		out := make([]taste.Artist, 0, len(top.Artists))
		for _, a := range top.Artists {
			out = append(out, convertArtist(a))
		}
		return out, nil
	}

	ids, err := s.topTrackArtistIDs(ctx, client)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if ids, err = s.savedTrackArtistIDs(ctx, client); err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.resolveArtists(ctx, client, ids)
}

func (s *Syncer) topTrackArtistIDs(ctx context.Context, client *spotifyapi.Client) ([]spotifyapi.ID, error) {
	page, err := client.CurrentUsersTopTracks(ctx, spotifyapi.Limit(pageLimit))
	if err != nil {
		return nil, fmt.Errorf("top tracks: %w", err)
	}
	var ids []spotifyapi.ID
	seen := make(map[spotifyapi.ID]bool)
	for _, t := range page.Tracks {
		for _, a := range t.Artists {
			if !seen[a.ID] {
				seen[a.ID] = true
				ids = append(ids, a.ID)
			}
		}
	}
	return ids, nil
}

func (s *Syncer) savedTrackArtistIDs(ctx context.Context, client *spotifyapi.Client) ([]spotifyapi.ID, error) {
	page, err := client.CurrentUsersTracks(ctx, spotifyapi.Limit(pageLimit))
	if err != nil {
		return nil, fmt.Errorf("saved tracks: %w", err)
	}
	var ids []spotifyapi.ID
	seen := make(map[spotifyapi.ID]bool)
	for _, t := range page.Tracks {
		for _, a := range t.Artists {
			if !seen[a.ID] {
				seen[a.ID] = true
				ids = append(ids, a.ID)
			}
		}
	}
	return ids, nil
}

// resolveArtists hydrates bare artist IDs into full records, batching to
// the API's per-call cap.
func (s *Syncer) resolveArtists(ctx context.Context, client *spotifyapi.Client, ids []spotifyapi.ID) ([]taste.Artist, error) {
	var out []taste.Artist
	for len(ids) > 0 {
		batch := ids
		if len(batch) > artistBatchMax {
			batch = batch[:artistBatchMax]
		}
		ids = ids[len(batch):]

		full, err := client.GetArtists(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("get artists: %w", err)
		}
		for _, a := range full {
			if a == nil {
				continue
			}
			out = append(out, convertArtist(*a))
		}
	}
	return out, nil
}

func convertArtist(a spotifyapi.FullArtist) taste.Artist {
	image := ""
	if len(a.Images) > 0 {
		image = a.Images[0].URL
	}
	return taste.Artist{
		ID:     a.ID.String(),
		Name:   a.Name,
		Genres: a.Genres,
		Image:  image,
	}
}
