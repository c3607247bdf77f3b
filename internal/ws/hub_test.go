package ws

import (
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// startReadLoop registers one end of a pipe with the hub and runs the
// read loop on it. The returned channel closes when the loop exits.
func startReadLoop(t *testing.T, h *Hub, userID string, onMessage func([]byte)) (*Conn, net.Conn, chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	c := h.Register(userID, server)

	done := make(chan struct{})
	go func() {
		h.ReadLoop(c, onMessage)
		close(done)
	}()
	return c, client, done
}

func TestReadLoop_PongRefreshesHeartbeatClock(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	c, client, done := startReadLoop(t, h, "pong-user", nil)

	// Backdate the clock so only the pong can bring it forward.
	stale := time.Now().Add(-time.Hour)
	c.mu.Lock()
	c.lastSeen = stale
	c.mu.Unlock()

	pong := ws.MaskFrameInPlace(ws.NewPongFrame(nil))
	if err := ws.WriteFrame(client, pong); err != nil {
		t.Fatalf("write pong: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.seen().Equal(stale) {
		if time.Now().After(deadline) {
			t.Fatal("pong frame did not refresh the heartbeat clock")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client.Close()
	<-done
}

func TestReadLoop_DeliversTextFrames(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	got := make(chan []byte, 1)
	_, client, done := startReadLoop(t, h, "text-user", func(data []byte) {
		got <- data
	})

	payload := []byte(`{"to":"someone","content":"hi"}`)
	if err := wsutil.WriteClientMessage(client, ws.OpText, payload); err != nil {
		t.Fatalf("write text: %v", err)
	}

	select {
	case data := <-got:
		if string(data) != string(payload) {
			t.Errorf("payload = %q, want %q", data, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("text frame was not delivered")
	}

	client.Close()
	<-done
}

func TestReadLoop_RemovesConnectionOnClose(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	_, client, done := startReadLoop(t, h, "gone-user", nil)
	if h.Count() != 1 {
		t.Fatalf("count = %d, want 1", h.Count())
	}

	client.Close()
	<-done

	if h.Count() != 0 {
		t.Errorf("count after close = %d, want 0", h.Count())
	}
}
