// Package ws maintains authenticated realtime WebSocket sessions. Each
// signed-in user may hold several connections (multiple tabs or devices);
// the hub fans outbound events to all of them.
package ws

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn is a single WebSocket client connection with a write mutex for
// serializing outbound frames.
type Conn struct {
	UserID    string
	netConn   net.Conn
	createdAt time.Time

	mu       sync.Mutex // serializes writes and guards lastSeen
	lastSeen time.Time
}

// WriteMessage sends a text frame to this connection. The write mutex
// ensures concurrent goroutines do not interleave frame bytes.
func (c *Conn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteServerMessage(c.netConn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame (opcode 0x9); the browser
// answers with a pong automatically.
func (c *Conn) WritePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ws.WriteFrame(c.netConn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Conn) Close() error {
	return c.netConn.Close()
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Conn) seen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Hub is a thread-safe registry of live connections keyed by user ID.
type Hub struct {
	mu     sync.RWMutex
	byUser map[string]map[*Conn]struct{}
	done   chan struct{}
	once   sync.Once
}

// NewHub creates an empty Hub and starts its heartbeat monitor.
func NewHub() *Hub {
	h := &Hub{
		byUser: make(map[string]map[*Conn]struct{}),
		done:   make(chan struct{}),
	}
	go h.heartbeatLoop(DefaultHeartbeatConfig())
	return h
}

// Register wraps an upgraded network connection and adds it to the hub.
func (h *Hub) Register(userID string, netConn net.Conn) *Conn {
	c := &Conn{
		UserID:    userID,
		netConn:   netConn,
		createdAt: time.Now(),
		lastSeen:  time.Now(),
	}
	h.mu.Lock()
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Conn]struct{})
	}
	h.byUser[userID][c] = struct{}{}
	total := h.count()
	h.mu.Unlock()

	log.Printf("[ws] connected user=%s (total=%d)", userID, total)
	return c
}

// Remove drops a connection from the hub and closes it. Safe to call
// more than once for the same connection.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	set, ok := h.byUser[c.UserID]
	if ok {
		if _, ok = set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byUser, c.UserID)
			}
		}
	}
	total := h.count()
	h.mu.Unlock()

	if ok {
		c.Close()
		log.Printf("[ws] disconnected user=%s (total=%d)", c.UserID, total)
	}
}

// SendToUser delivers an event to every live connection of a user and
// reports whether at least one delivery succeeded. A user with no
// connections is not an error; the event is simply dropped here and the
// recipient catches up from the database.
func (h *Hub) SendToUser(userID string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[ws] marshal event for %s: %v", userID, err)
		return false
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.byUser[userID]))
	for c := range h.byUser[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range conns {
		if err := c.WriteMessage(data); err != nil {
			h.Remove(c)
			continue
		}
		delivered = true
	}
	return delivered
}

// Count returns the current number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count()
}

// count must be called with h.mu held.
func (h *Hub) count() int {
	n := 0
	for _, set := range h.byUser {
		n += len(set)
	}
	return n
}

// all returns a snapshot safe to iterate without the lock.
func (h *Hub) all() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Conn, 0, 16)
	for _, set := range h.byUser {
		for c := range set {
			conns = append(conns, c)
		}
	}
	return conns
}

// Shutdown stops the heartbeat and closes every live connection.
func (h *Hub) Shutdown() {
	h.once.Do(func() { close(h.done) })
	for _, c := range h.all() {
		h.Remove(c)
	}
}

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping
	Timeout  time.Duration // max quiet time after a ping before eviction
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// heartbeatLoop periodically pings all connections and evicts those with
// no activity within Interval + Timeout.
func (h *Hub) heartbeatLoop(cfg HeartbeatConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			deadline := cfg.Interval + cfg.Timeout
			now := time.Now()
			for _, c := range h.all() {
				if now.Sub(c.seen()) > deadline {
					log.Printf("[ws] heartbeat timeout user=%s last_activity=%s ago",
						c.UserID, now.Sub(c.seen()).Round(time.Second))
					h.Remove(c)
					continue
				}
				if err := c.WritePing(); err != nil {
					h.Remove(c)
				}
			}
		}
	}
}

// lockedWriter serializes control-frame replies with the connection's
// other outbound writes.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.netConn.Write(p)
}

// ReadLoop consumes frames from a registered connection until it closes.
// Every frame, control frames included, refreshes the heartbeat clock:
// a quiet client that answers pings stays registered. Text frames are
// passed to onMessage. The connection is removed from the hub on exit.
func (h *Hub) ReadLoop(c *Conn, onMessage func(data []byte)) {
	defer h.Remove(c)

	control := wsutil.ControlFrameHandler(lockedWriter{c}, ws.StateServerSide)
	rd := wsutil.Reader{
		Source:         c.netConn,
		State:          ws.StateServerSide,
		OnIntermediate: control,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return
		}
		c.touch()

		if hdr.OpCode.IsControl() {
			// Answers pings, consumes pongs, errors out on a close frame.
			if err := control(hdr, &rd); err != nil {
				return
			}
			continue
		}

		data, err := io.ReadAll(&rd)
		if err != nil {
			return
		}
		if hdr.OpCode == ws.OpText && len(data) > 0 && onMessage != nil {
			onMessage(data)
		}
	}
}
