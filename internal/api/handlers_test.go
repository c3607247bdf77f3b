package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/hertzfm/hertz/internal/chat"
)

type fakeChats struct {
	msgs        []*chat.Message
	markReadErr error
	marked      bool
}

func (f *fakeChats) Send(ctx context.Context, from, to, content string) (*chat.Message, error) {
	return nil, chat.ErrNotConnected
}

func (f *fakeChats) History(ctx context.Context, me, other string, limit int) ([]*chat.Message, error) {
	return f.msgs, nil
}

func (f *fakeChats) MarkRead(ctx context.Context, me, other string) error {
	f.marked = true
	return f.markReadErr
}

func TestMessageHistory_MarkReadFailureStillReturnsMessages(t *testing.T) {
	me := uuid.New().String()
	other := uuid.New().String()

	fake := &fakeChats{
		msgs: []*chat.Message{
			{ID: 1, SenderID: other, ReceiverID: me, Content: "hey"},
		},
		markReadErr: errors.New("bookkeeping down"),
	}
	srv := NewServer(Config{}, Deps{Chats: fake})

	req := httptest.NewRequest(http.MethodGet, "/api/messages/"+other, nil)
	req.Header.Set("X-User-ID", me)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}

	var got []*chat.Message
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hey" {
		t.Errorf("messages = %+v, want the fetched history", got)
	}
	if !fake.marked {
		t.Error("read receipts were never attempted")
	}
}
