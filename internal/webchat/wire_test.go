package webchat

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDecodeEventNewMessage(t *testing.T) {
	raw := `{
		"type": "new_message",
		"chat_id": "chat-1",
		"message": {
			"id": "m1",
			"chat_id": "chat-1",
			"timestamp": "2025-06-01T12:00:00Z",
			"reply_to_message_id": "m0",
			"is_outgoing": true,
			"text": "hello",
			"media_type": "text"
		}
	}`

	event, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	nm, ok := event.(NewMessageEvent)
	if !ok {
		t.Fatalf("event type = %T, want NewMessageEvent", event)
	}
	if nm.ChatID != "chat-1" {
		t.Fatalf("chat id = %q, want chat-1", nm.ChatID)
	}
	if nm.Message.ID != "m1" || nm.Message.ReplyToMessageID != "m0" {
		t.Fatalf("message = %+v", nm.Message)
	}
	if nm.Message.IsOutgoing == nil || !*nm.Message.IsOutgoing {
		t.Fatal("expected outgoing message")
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !nm.Message.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", nm.Message.Timestamp, want)
	}
}

func TestDecodeEventSystemMessageHasNilOutgoing(t *testing.T) {
	raw := `{"type":"new_message","chat_id":"c","message":{"id":"m","chat_id":"c","timestamp":"2025-06-01T12:00:00Z","is_outgoing":null,"text":"joined"}}`

	event, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	nm := event.(NewMessageEvent)
	if nm.Message.IsOutgoing != nil {
		t.Fatalf("is_outgoing = %v, want nil for system message", *nm.Message.IsOutgoing)
	}
}

func TestDecodeEventChatsList(t *testing.T) {
	raw := `{"type":"chats_list","chats":[{"id":"c1","name":"Support"},{"id":"c2","name":"Sales","last_message":{"text":"bye","timestamp":"2025-06-01T12:00:00Z"}}]}`

	event, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	list, ok := event.(ChatsListEvent)
	if !ok {
		t.Fatalf("event type = %T, want ChatsListEvent", event)
	}
	if len(list.Chats) != 2 || list.Chats[1].LastMessage == nil {
		t.Fatalf("chats = %+v", list.Chats)
	}
}

func TestDecodeEventMessagesListMatchesChat(t *testing.T) {
	raw := `{"type":"messages_list","chat_id":"c1","messages":[{"id":"m1","chat_id":"c1","timestamp":"2025-06-01T12:00:00Z","text":"hi"}]}`

	event, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	list := event.(MessagesListEvent)
	if list.ChatID != "c1" || len(list.Messages) != 1 {
		t.Fatalf("messages_list = %+v", list)
	}
}

func TestDecodeEventMessageSentFailure(t *testing.T) {
	raw := `{"type":"message_sent","success":false,"error":"account blocked"}`

	event, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sent := event.(MessageSentEvent)
	if sent.Success || sent.Error != "account blocked" {
		t.Fatalf("message_sent = %+v", sent)
	}
}

func TestDecodeEventUnknownTypeIsNotFatal(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"type":"typing_indicator","chat_id":"c1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	unknown, ok := event.(UnknownEvent)
	if !ok {
		t.Fatalf("event type = %T, want UnknownEvent", event)
	}
	if unknown.Type != "typing_indicator" {
		t.Fatalf("unknown type = %q", unknown.Type)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
	if _, err := DecodeEvent([]byte(`{"chat_id":"c1"}`)); err == nil {
		t.Fatal("expected error for envelope without type")
	}
}

func TestEncodeActionInjectsDiscriminator(t *testing.T) {
	raw, err := EncodeAction(SubscribeChatAction{ChatID: "c1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if fields["action"] != "subscribe_chat" || fields["chat_id"] != "c1" {
		t.Fatalf("encoded = %s", raw)
	}
}

func TestEncodeActionSendMessage(t *testing.T) {
	raw, err := EncodeAction(SendMessageAction{
		ChatID:           "c1",
		Text:             "edited",
		ReplyToMessageID: "parent",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := string(raw)
	for _, fragment := range []string{`"action":"send_message"`, `"reply_to_message_id":"parent"`, `"text":"edited"`} {
		if !strings.Contains(got, fragment) {
			t.Fatalf("encoded %s missing %s", got, fragment)
		}
	}
	if strings.Contains(got, "metadata") {
		t.Fatalf("empty metadata should be omitted: %s", got)
	}
}

func TestSortMessagesBreaksTiesByID(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	messages := []Message{
		{ID: "b", Timestamp: ts},
		{ID: "a", Timestamp: ts},
		{ID: "c", Timestamp: ts.Add(-time.Second)},
	}
	SortMessages(messages)
	if messages[0].ID != "c" || messages[1].ID != "a" || messages[2].ID != "b" {
		t.Fatalf("order = %s %s %s, want c a b", messages[0].ID, messages[1].ID, messages[2].ID)
	}
}
