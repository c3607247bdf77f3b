package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	gobwasws "github.com/gobwas/ws"

	"github.com/hertzfm/hertz/internal/ratelimit"
)

// inboundChat is the payload a client sends over its realtime
// connection instead of the REST endpoint.
type inboundChat struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// GET /ws
//
// Upgrades to a WebSocket scoped to the authenticated user. Outbound
// frames are wsEnvelope events; inbound text frames are chat sends,
// subject to the same connection gate and rate limit as the REST path.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	netConn, _, _, err := gobwasws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[api] ws upgrade failed for %s: %v", uid, err)
		return
	}

	conn := s.deps.Hub.Register(uid, netConn)
	go s.deps.Hub.ReadLoop(conn, func(data []byte) {
		s.handleInbound(uid, data)
	})
}

func (s *Server) handleInbound(uid string, data []byte) {
	var in inboundChat
	if err := json.Unmarshal(data, &in); err != nil || in.To == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.deps.Limiter != nil {
		if ok, _ := s.deps.Limiter.Allow(ctx, uid, ratelimit.RuleMessage); !ok {
			s.deps.Hub.SendToUser(uid, wsEnvelope{Type: "error", Data: json.RawMessage(`{"error":"rate limit exceeded"}`)})
			return
		}
	}

	if _, err := s.deps.Chats.Send(ctx, uid, in.To, in.Content); err != nil {
		body, _ := json.Marshal(errorBody{Error: err.Error()})
		s.deps.Hub.SendToUser(uid, wsEnvelope{Type: "error", Data: body})
	}
}
