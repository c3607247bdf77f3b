// Package api exposes the HTTP and realtime surface of the matching
// service: ranked match lists, connection lifecycle, gated messaging,
// listening-history ingest, notifications, and Spotify account linking.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	natsio "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/hertzfm/hertz/internal/chat"
	"github.com/hertzfm/hertz/internal/connection"
	"github.com/hertzfm/hertz/internal/history"
	"github.com/hertzfm/hertz/internal/match"
	"github.com/hertzfm/hertz/internal/messaging"
	"github.com/hertzfm/hertz/internal/metrics"
	"github.com/hertzfm/hertz/internal/musicprofile"
	"github.com/hertzfm/hertz/internal/notify"
	"github.com/hertzfm/hertz/internal/ratelimit"
	"github.com/hertzfm/hertz/internal/spotify"
	"github.com/hertzfm/hertz/internal/users"
	"github.com/hertzfm/hertz/internal/ws"
)

// Config holds tunable parameters for the API server.
type Config struct {
	ListenAddr         string
	SpotifyRedirectURL string
}

// ChatService is the messaging surface the handlers depend on.
// Implemented by *chat.Store.
type ChatService interface {
	Send(ctx context.Context, from, to, content string) (*chat.Message, error)
	History(ctx context.Context, me, other string, limit int) ([]*chat.Message, error)
	MarkRead(ctx context.Context, me, other string) error
}

// Deps bundles the stores and services the handlers operate on.
type Deps struct {
	Users    *users.Store
	Conns    *connection.Store
	Chats    ChatService
	History  *history.Store
	Notices  *notify.Store
	Notifier *notify.Notifier
	Profiles *musicprofile.Store
	Ranker   *match.Ranker
	SigCache *match.SignatureCache
	Limiter  *ratelimit.Limiter
	Redis    *redis.Client
	NATS     *messaging.NATSClient
	Hub      *ws.Hub

	SpotifyAuth   *spotify.Authenticator // nil when Spotify is not configured
	SpotifyTokens *spotify.TokenStore
	Syncer        *spotify.Syncer
}

// Server wires the router, middleware, and realtime bridge together.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer builds the router and HTTP server but does not start listening.
func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	// The OAuth callback arrives from Spotify without our auth header;
	// the state nonce carries the user binding instead.
	s.router.Get("/api/spotify/callback", s.handleSpotifyCallback)

	s.router.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.With(throttle(s.deps.Limiter, ratelimit.RuleRank)).
			Get("/api/matches", s.handleMatches)

		r.Route("/api/connections", func(r chi.Router) {
			r.Get("/", s.handleListConnections)
			r.With(throttle(s.deps.Limiter, ratelimit.RulePropose)).
				Post("/", s.handlePropose)
			r.Post("/{id}/accept", s.handleAccept)
			r.Post("/{id}/reject", s.handleReject)
			r.Delete("/{id}", s.handleRemove)
		})

		r.Route("/api/messages/{userID}", func(r chi.Router) {
			r.Get("/", s.handleMessageHistory)
			r.With(throttle(s.deps.Limiter, ratelimit.RuleMessage)).
				Post("/", s.handleSendMessage)
		})

		r.Post("/api/history", s.handleRecordPlay)

		r.Get("/api/notifications", s.handleListNotifications)
		r.Post("/api/notifications/{id}/read", s.handleMarkNotificationRead)

		r.Get("/api/users/{id}", s.handleGetUser)

		r.Get("/api/spotify/login", s.handleSpotifyLogin)
		r.With(throttle(s.deps.Limiter, ratelimit.RuleSpotifySync)).
			Post("/api/spotify/sync", s.handleSpotifySync)
		r.Delete("/api/spotify/link", s.handleSpotifyUnlink)

		r.Get("/ws", s.handleWS)
	})
}

// Start begins serving and bridges NATS events to connected WebSocket
// clients. It blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	if err := s.bridgeRealtime(); err != nil {
		return fmt.Errorf("api: subscribe realtime subjects: %w", err)
	}

	log.Printf("[api] listening on %s", s.cfg.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: http server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP listener and closes all realtime connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Hub.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// bridgeRealtime forwards per-user NATS subjects to the local hub. Every
// API instance subscribes to the wildcard; instances without the target
// user connected simply find no hub entry.
func (s *Server) bridgeRealtime() error {
	if s.deps.NATS == nil {
		log.Printf("[api] nats disabled, realtime events limited to this instance")
		return nil
	}

	err := s.deps.NATS.Subscribe(messaging.SubjectChatMessage+".>", func(msg *natsio.Msg) {
		s.deps.Hub.SendToUser(subjectUser(msg.Subject), wsEnvelope{Type: "message", Data: json.RawMessage(msg.Data)})
	})
	if err != nil {
		return err
	}

	return s.deps.NATS.Subscribe(messaging.SubjectNotify+".>", func(msg *natsio.Msg) {
		s.deps.Hub.SendToUser(subjectUser(msg.Subject), wsEnvelope{Type: "notification", Data: json.RawMessage(msg.Data)})
	})
}

// subjectUser extracts the trailing user ID token from a per-user subject
// such as "chat.message.<uuid>".
func subjectUser(subject string) string {
	i := strings.LastIndex(subject, ".")
	if i < 0 {
		return subject
	}
	return subject[i+1:]
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.deps.Hub.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	})
}
