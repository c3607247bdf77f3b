package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hertzfm/hertz/internal/spotify"
)

const stateTTL = 10 * time.Minute

const statePrefix = "spotify:state:"

// GET /api/spotify/login
//
// Issues the consent URL. The state nonce is bound to the requesting
// user in Redis so the unauthenticated callback can recover who started
// the flow.
func (s *Server) handleSpotifyLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.SpotifyAuth == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "spotify integration not configured"})
		return
	}

	state, err := spotify.GenerateState()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Redis.Set(r.Context(), statePrefix+state, userID(r), stateTTL).Err(); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		URL string `json:"url"`
	}{URL: s.deps.SpotifyAuth.AuthURL(state)})
}

// GET /api/spotify/callback
//
// Completes the code exchange, stores the token, and runs the first
// profile sync inline so the user lands with a usable profile.
func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.SpotifyAuth == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "spotify integration not configured"})
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		writeBadRequest(w, "missing state")
		return
	}

	// GetDel makes the nonce single-use.
	uid, err := s.deps.Redis.GetDel(r.Context(), statePrefix+state).Result()
	if err != nil {
		writeBadRequest(w, "unknown or expired state")
		return
	}

	tok, err := s.deps.SpotifyAuth.Token(r.Context(), state, r)
	if err != nil {
		writeBadRequest(w, "code exchange failed")
		return
	}
	if err := s.deps.SpotifyTokens.Save(r.Context(), uid, tok); err != nil {
		writeError(w, err)
		return
	}

	if err := s.deps.Syncer.Sync(r.Context(), uid); err != nil {
		// The link itself succeeded; an empty library surfaces as 422 so
		// the client can explain why no explicit profile appeared.
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Linked bool `json:"linked"`
	}{Linked: true})
}

// POST /api/spotify/sync
//
// Hands the refresh to the profile sync service over NATS; the inline
// path only runs when the broker is down.
func (s *Server) handleSpotifySync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Syncer == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "spotify integration not configured"})
		return
	}

	if s.deps.NATS != nil {
		payload, _ := json.Marshal(struct {
			UserID string `json:"user_id"`
		}{UserID: userID(r)})
		if err := s.deps.NATS.PublishProfileRefresh(payload); err == nil {
			writeJSON(w, http.StatusAccepted, struct {
				Queued bool `json:"queued"`
			}{Queued: true})
			return
		}
	}

	if err := s.deps.Syncer.Sync(r.Context(), userID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Synced bool `json:"synced"`
	}{Synced: true})
}

// DELETE /api/spotify/link
//
// Drops the stored token and flips the profile to unlinked. Profile data
// is kept but no longer participates in explicit scoring.
func (s *Server) handleSpotifyUnlink(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.SpotifyTokens.Delete(r.Context(), userID(r)); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Profiles.Unlink(r.Context(), userID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
