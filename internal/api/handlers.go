package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hertzfm/hertz/internal/connection"
	"github.com/hertzfm/hertz/internal/history"
	"github.com/hertzfm/hertz/internal/match"
	"github.com/hertzfm/hertz/internal/metrics"
	"github.com/hertzfm/hertz/internal/notify"
)

const defaultPageLimit = 50

// GET /api/matches?view=all|spotify
func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	view := match.ViewAll
	if r.URL.Query().Get("view") == "spotify" {
		view = match.ViewSpotifyOnly
	}

	candidates, err := s.deps.Ranker.Rank(r.Context(), userID(r), view)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Matches []match.Candidate `json:"matches"`
	}{Matches: candidates})
}

// POST /api/connections
func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string  `json:"user_id"`
		MatchScore float64 `json:"match_score"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if _, err := uuid.Parse(body.UserID); err != nil {
		writeBadRequest(w, "invalid user_id")
		return
	}

	me := userID(r)
	conn, err := s.deps.Conns.Propose(r.Context(), me, body.UserID, body.MatchScore)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ConnectionTransitions.WithLabelValues("propose").Inc()

	s.deps.Notifier.Send(r.Context(), body.UserID, notify.TypeConnectionRequest,
		"Someone wants to connect over your taste", "/connections/"+conn.ID)

	writeJSON(w, http.StatusCreated, conn)
}

// POST /api/connections/{id}/accept
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	conn, err := s.deps.Conns.Accept(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ConnectionTransitions.WithLabelValues("accept").Inc()

	s.deps.Notifier.Send(r.Context(), conn.Partner(userID(r)), notify.TypeMatchAccepted,
		"Your connection request was accepted", "/messages/"+userID(r))

	writeJSON(w, http.StatusOK, conn)
}

// POST /api/connections/{id}/reject
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Conns.Reject(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		writeError(w, err)
		return
	}
	metrics.ConnectionTransitions.WithLabelValues("reject").Inc()
	writeJSON(w, http.StatusNoContent, nil)
}

// DELETE /api/connections/{id}
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Conns.Remove(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		writeError(w, err)
		return
	}
	metrics.ConnectionTransitions.WithLabelValues("remove").Inc()
	writeJSON(w, http.StatusNoContent, nil)
}

// GET /api/connections
//
// Lists the caller's connections with the partner's directory card
// attached, pending first is the client's job; rows come back newest
// first from the store.
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	me := userID(r)
	conns, err := s.deps.Conns.ListForUser(r.Context(), me)
	if err != nil {
		writeError(w, err)
		return
	}

	partnerIDs := make([]string, 0, len(conns))
	for _, c := range conns {
		partnerIDs = append(partnerIDs, c.Partner(me))
	}
	partners, err := s.deps.Users.GetMany(r.Context(), partnerIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	type entry struct {
		*connection.Connection
		PartnerID   string `json:"partner_id"`
		PartnerName string `json:"partner_name"`
		PartnerPic  string `json:"partner_avatar_url"`
	}
	out := make([]entry, 0, len(conns))
	for _, c := range conns {
		e := entry{Connection: c, PartnerID: c.Partner(me)}
		if p, ok := partners[e.PartnerID]; ok {
			e.PartnerName = p.DisplayName
			e.PartnerPic = p.AvatarURL
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/messages/{userID}
func (s *Server) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	other := chi.URLParam(r, "userID")
	limit := queryInt(r, "limit", defaultPageLimit)

	msgs, err := s.deps.Chats.History(r.Context(), userID(r), other, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	// Read-receipt bookkeeping never fails the read itself.
	if err := s.deps.Chats.MarkRead(r.Context(), userID(r), other); err != nil {
		log.Printf("[api] mark read %s<-%s: %v", userID(r), other, err)
	}
	writeJSON(w, http.StatusOK, msgs)
}

// POST /api/messages/{userID}
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	msg, err := s.deps.Chats.Send(r.Context(), userID(r), chi.URLParam(r, "userID"), body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// POST /api/history
func (s *Server) handleRecordPlay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Song struct {
			Title      string `json:"title"`
			Artist     string `json:"artist"`
			Genre      string `json:"genre"`
			URL        string `json:"url"`
			CoverURL   string `json:"cover_url"`
			Duration   int    `json:"duration"`
			Origin     string `json:"origin"`
			ExternalID string `json:"external_id"`
		} `json:"song"`
		DurationListened int  `json:"duration_listened"`
		Completed        bool `json:"completed"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.Song.Title == "" || body.Song.Artist == "" {
		writeBadRequest(w, "song title and artist are required")
		return
	}

	songID, err := s.deps.History.UpsertSong(r.Context(), &history.Song{
		Title:      body.Song.Title,
		Artist:     body.Song.Artist,
		Genre:      body.Song.Genre,
		URL:        body.Song.URL,
		CoverURL:   body.Song.CoverURL,
		Duration:   body.Song.Duration,
		Origin:     body.Song.Origin,
		ExternalID: body.Song.ExternalID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.deps.History.Record(r.Context(), &history.Event{
		UserID:           userID(r),
		SongID:           songID,
		ListenedAt:       time.Now(),
		DurationListened: body.DurationListened,
		Completed:        body.Completed,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// The stored signature no longer reflects the latest play.
	if s.deps.SigCache != nil {
		if err := s.deps.SigCache.Invalidate(r.Context(), userID(r)); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, nil)
}

// GET /api/notifications
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Notices.ListForUser(r.Context(), userID(r), queryInt(r, "limit", defaultPageLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/notifications/{id}/read
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid notification id")
		return
	}
	if err := s.deps.Notices.MarkRead(r.Context(), id, userID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// GET /api/users/{id}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
		Bio         string `json:"bio"`
	}{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL, Bio: u.Bio})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
