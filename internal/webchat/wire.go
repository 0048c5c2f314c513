package webchat

import (
	"encoding/json"
	"fmt"
)

// Event is one inbound envelope from the event feed, discriminated by its
// wire "type". Consumers switch on the concrete type; UnknownEvent is the
// safe no-op variant for types this client does not recognize.
type Event interface {
	eventType() string
}

// NewMessageEvent announces a message appended to a chat.
type NewMessageEvent struct {
	ChatID  string  `json:"chat_id"`
	Message Message `json:"message"`
}

// ChatUpdateEvent announces changed chat metadata.
type ChatUpdateEvent struct {
	Chat Chat `json:"chat"`
}

// ChatsListEvent is the response to a get_chats action.
type ChatsListEvent struct {
	Chats []Chat `json:"chats"`
}

// MessagesListEvent is the response to a get_messages action.
type MessagesListEvent struct {
	ChatID   string    `json:"chat_id"`
	Messages []Message `json:"messages"`
}

// MessageSentEvent is the response to a send_message action.
type MessageSentEvent struct {
	Success bool     `json:"success"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// UnknownEvent carries an envelope type this client does not handle.
type UnknownEvent struct {
	Type string
}

func (NewMessageEvent) eventType() string   { return "new_message" }
func (ChatUpdateEvent) eventType() string   { return "chat_update" }
func (ChatsListEvent) eventType() string    { return "chats_list" }
func (MessagesListEvent) eventType() string { return "messages_list" }
func (MessageSentEvent) eventType() string  { return "message_sent" }
func (e UnknownEvent) eventType() string    { return e.Type }

// DecodeEvent parses one inbound envelope. Unrecognized types decode to
// UnknownEvent; only malformed JSON or a missing type discriminator is an
// error.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}

	switch head.Type {
	case "new_message":
		var event NewMessageEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("decode new_message: %w", err)
		}
		return event, nil
	case "chat_update":
		var event ChatUpdateEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("decode chat_update: %w", err)
		}
		return event, nil
	case "chats_list":
		var event ChatsListEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("decode chats_list: %w", err)
		}
		return event, nil
	case "messages_list":
		var event MessagesListEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("decode messages_list: %w", err)
		}
		return event, nil
	case "message_sent":
		var event MessageSentEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("decode message_sent: %w", err)
		}
		return event, nil
	default:
		return UnknownEvent{Type: head.Type}, nil
	}
}

// Action is one outbound envelope for the event feed, discriminated by its
// wire "action".
type Action interface {
	actionName() string
}

// SubscribeAction registers chat-list filters for push updates.
type SubscribeAction struct {
	Filters map[string]string `json:"filters"`
}

// SubscribeChatAction subscribes to one chat's message feed.
type SubscribeChatAction struct {
	ChatID string `json:"chat_id"`
}

// UnsubscribeChatAction drops a chat subscription.
type UnsubscribeChatAction struct {
	ChatID string `json:"chat_id"`
}

// SendMessageAction submits a message over the duplex channel.
type SendMessageAction struct {
	ChatID           string         `json:"chat_id,omitempty"`
	Text             string         `json:"text"`
	ReplyToMessageID string         `json:"reply_to_message_id,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// GetChatsAction requests the chat list over the duplex channel.
type GetChatsAction struct {
	Filters map[string]string `json:"filters,omitempty"`
}

// GetMessagesAction requests a chat's messages over the duplex channel.
type GetMessagesAction struct {
	ChatID string `json:"chat_id"`
	Limit  int    `json:"limit,omitempty"`
}

func (SubscribeAction) actionName() string       { return "subscribe" }
func (SubscribeChatAction) actionName() string   { return "subscribe_chat" }
func (UnsubscribeChatAction) actionName() string { return "unsubscribe_chat" }
func (SendMessageAction) actionName() string     { return "send_message" }
func (GetChatsAction) actionName() string        { return "get_chats" }
func (GetMessagesAction) actionName() string     { return "get_messages" }

// EncodeAction marshals an action with its "action" discriminator injected at
// the top level, matching the flat envelope shape the feed expects.
func EncodeAction(a Action) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.actionName(), err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.actionName(), err)
	}
	fields["action"] = a.actionName()
	return json.Marshal(fields)
}
