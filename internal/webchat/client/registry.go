package client

import (
	"sync"

	"github.com/louisbranch/webchat/internal/webchat"
)

// Registry remembers the client's desired subscription state: the last-set
// chat-list filters and the single live chat. Server-side subscription state
// does not survive a reconnect, so the supervisor replays this registry over
// every fresh duplex session.
type Registry struct {
	mu      sync.Mutex
	filters map[string]string
	chatID  string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetFilters records the chat-list filters and returns the action to emit on
// a live connection.
func (r *Registry) SetFilters(filters map[string]string) webchat.Action {
	copied := make(map[string]string, len(filters))
	for key, value := range filters {
		copied[key] = value
	}
	r.mu.Lock()
	r.filters = copied
	r.mu.Unlock()
	return webchat.SubscribeAction{Filters: copied}
}

// SubscribeToChat records chatID as the live chat. Subscribing supersedes the
// previous chat without an explicit unsubscribe, matching a single-focus UI.
func (r *Registry) SubscribeToChat(chatID string) webchat.Action {
	r.mu.Lock()
	r.chatID = chatID
	r.mu.Unlock()
	return webchat.SubscribeChatAction{ChatID: chatID}
}

// UnsubscribeFromChat clears the live chat if chatID is current and returns
// the action to emit.
func (r *Registry) UnsubscribeFromChat(chatID string) webchat.Action {
	r.mu.Lock()
	if r.chatID == chatID {
		r.chatID = ""
	}
	r.mu.Unlock()
	return webchat.UnsubscribeChatAction{ChatID: chatID}
}

// ChatID returns the live chat id, empty when none.
func (r *Registry) ChatID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatID
}

// Filters returns a copy of the recorded filters.
func (r *Registry) Filters() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string]string, len(r.filters))
	for key, value := range r.filters {
		copied[key] = value
	}
	return copied
}

// Replay re-issues the current desired state over a fresh session: filters
// first, then the chat subscription.
func (r *Registry) Replay(send func(webchat.Action) error) error {
	r.mu.Lock()
	filters := r.filters
	chatID := r.chatID
	r.mu.Unlock()

	if len(filters) > 0 {
		if err := send(webchat.SubscribeAction{Filters: filters}); err != nil {
			return err
		}
	}
	if chatID != "" {
		if err := send(webchat.SubscribeChatAction{ChatID: chatID}); err != nil {
			return err
		}
	}
	return nil
}
