package webchat

import (
	"sort"
	"time"
)

// Message is one record in a chat history. Edits never mutate a message in
// place; editing creates a new sibling with the same ReplyToMessageID, which
// is what produces branching.
type Message struct {
	ID               string    `json:"id"`
	ChatID           string    `json:"chat_id"`
	Timestamp        time.Time `json:"timestamp"`
	ReplyToMessageID string    `json:"reply_to_message_id,omitempty"`
	// IsOutgoing is tri-state: true for counterpart/bot messages, false for
	// messages from the local user, nil for system messages.
	IsOutgoing *bool  `json:"is_outgoing"`
	Text       string `json:"text"`
	HTML       string `json:"html,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
}

// IsRoot reports whether the message starts a conversation thread.
func (m Message) IsRoot() bool {
	return m.ReplyToMessageID == ""
}

// Less orders messages by (timestamp, id). The id tiebreak keeps the order
// total and deterministic for identical inputs.
func Less(a, b Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

// SortMessages sorts messages in place by (timestamp, id) ascending.
func SortMessages(messages []Message) {
	sort.Slice(messages, func(i, j int) bool {
		return Less(messages[i], messages[j])
	})
}

// LastMessage summarizes the most recent message of a chat for list views.
type LastMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is a conversation thread. Metadata holds caller-supplied fields used
// only for subscription scoping; the client never interprets them.
type Chat struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	LastMessage *LastMessage      `json:"last_message,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
