package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessagePostsJSON(t *testing.T) {
	var got SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/send/" {
			t.Errorf("request = %s %s, want POST /send/", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"success":true,"message":{"id":"m1","chat_id":"c1","timestamp":"2025-06-01T12:00:00Z","text":"hello"}}`))
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, nil)
	msg, err := client.SendMessage(context.Background(), SendRequest{
		Text:             "hello",
		ChatID:           "c1",
		ReplyToMessageID: "m0",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != "m1" || msg.ChatID != "c1" {
		t.Fatalf("message = %+v", msg)
	}
	if got.ReplyToMessageID != "m0" {
		t.Fatalf("reply_to_message_id = %q, want m0", got.ReplyToMessageID)
	}
}

func TestSendMessageRequiresText(t *testing.T) {
	client := New("http://127.0.0.1:1", nil)
	if _, err := client.SendMessage(context.Background(), SendRequest{ChatID: "c1"}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestGetMessagesCursors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("chat_id") != "c1" || q.Get("limit") != "100" || q.Get("after") != "m5" {
			t.Errorf("query = %v", q)
		}
		if q.Has("before") {
			t.Errorf("unexpected before cursor: %v", q)
		}
		_, _ = w.Write([]byte(`{"success":true,"chat_id":"c1","messages":[{"id":"m6","chat_id":"c1","timestamp":"2025-06-01T12:00:00Z","text":"hi"}],"has_more":false}`))
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, nil)
	// Limit above the store cap must clamp to 100.
	page, err := client.GetMessages(context.Background(), "c1", 500, "", "m5")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != "m6" {
		t.Fatalf("page = %+v", page)
	}
	if page.HasMore {
		t.Fatal("has_more = true, want false")
	}
}

func TestGetChatsPassesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("project_id") != "42" {
			t.Errorf("query = %v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`{"success":true,"chats":[{"id":"c1","name":"Support"}]}`))
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, nil)
	chats, err := client.GetChats(context.Background(), map[string]string{"project_id": "42"})
	if err != nil {
		t.Fatalf("get chats: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != "c1" {
		t.Fatalf("chats = %+v", chats)
	}
}

func TestUpdateAndDeleteChatPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, nil)
	if err := client.UpdateChat(context.Background(), "c1", "Renamed"); err != nil {
		t.Fatalf("update chat: %v", err)
	}
	if err := client.DeleteChat(context.Background(), "c1"); err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/chat/c1/" || paths[1] != "/chat/c1/delete/" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Message could not be sent (account blocked)"}`))
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL, nil)
	_, err := client.SendMessage(context.Background(), SendRequest{Text: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", apiErr.Status)
	}
	if apiErr.Message != "Message could not be sent (account blocked)" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestRequestHonorsContextCancel(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	client := New(srv.URL, nil)
	go func() {
		_, err := client.GetChats(ctx, nil)
		errCh <- err
	}()

	<-started
	cancel()
	if err := <-errCh; err == nil {
		t.Fatal("expected error after context cancel")
	}
}
