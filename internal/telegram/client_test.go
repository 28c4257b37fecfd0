package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient("TOKEN", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestNewClient_RequiresToken(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestClient_SendMessage(t *testing.T) {
	var gotPath string
	var gotBody SendMessageParams
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := c.SendMessage(context.Background(), SendMessageParams{ChatID: 99, Text: "hi", DisableNotification: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotBody.ChatID != 99 || gotBody.Text != "hi" || !gotBody.DisableNotification {
		t.Errorf("unexpected payload: %+v", gotBody)
	}
}

func TestClient_OKFalseIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request"}`))
	})
	err := c.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "ok=false") {
		t.Fatalf("expected ok=false error, got %v", err)
	}
}

func TestClient_HTTPErrorIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	err := c.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected http 401 error, got %v", err)
	}
}

func TestClient_GetUpdatesAdvancesOffset(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"text":"a","chat":{"id":5},"from":{"id":7}}},
			{"update_id":12,"message":{"message_id":2,"text":"b","chat":{"id":5},"from":{"id":7}}}
		]}`))
	})

	updates, next, err := c.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if next != 13 {
		t.Errorf("expected next offset 13, got %d", next)
	}
	if updates[0].Message.Text != "a" || updates[0].Message.Chat.ID != 5 {
		t.Errorf("update not decoded: %+v", updates[0].Message)
	}
}

func TestClient_GetMe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1234,"is_bot":true,"username":"excursbot"}}`))
	})
	me, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if me.ID != 1234 || me.Username != "excursbot" {
		t.Errorf("unexpected bot user: %+v", me)
	}
}
