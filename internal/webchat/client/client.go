package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/louisbranch/webchat/internal/webchat"
	"github.com/louisbranch/webchat/internal/webchat/branch"
	"github.com/louisbranch/webchat/internal/webchat/store"
)

// Config wires a Client to its endpoints and handlers. Handlers are the only
// way to observe the client; at most one handler per concern, set once here.
type Config struct {
	// StoreBaseURL is the request/response store API root.
	StoreBaseURL string
	// DuplexURL is the event feed endpoint; empty disables duplex.
	DuplexURL string
	Origin    string
	// DisableDuplex forces polling from the first connect.
	DisableDuplex bool

	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	PollInterval   time.Duration

	// HTTPClient overrides the store's HTTP client, mainly for tests.
	HTTPClient *http.Client

	// OnPath observes the re-resolved visible path after every merge or
	// navigation for a chat.
	OnPath func(chatID string, path []branch.Entry)
	// OnChats observes chat list changes.
	OnChats func(chats []webchat.Chat)
	// OnState observes connection state transitions.
	OnState func(state State)
}

// SendOptions tunes one message submission.
type SendOptions struct {
	// ReplyToMessageID targets a specific parent. Empty targets the last
	// visible counterpart message, keeping the new message attached to the
	// currently-displayed branch. Edits pass the edited message's own parent
	// to create a sibling.
	ReplyToMessageID string
	Metadata         map[string]any
}

// Client is the public surface of the conversation client. It composes the
// supervisor, registry, store client, and branch resolver, and normalizes
// both transports to one API shape.
type Client struct {
	store    *store.Client
	registry *Registry
	sup      *Supervisor

	onPath  func(chatID string, path []branch.Entry)
	onChats func(chats []webchat.Chat)

	mu         sync.Mutex
	messages   map[string]map[string]webchat.Message
	selections map[string]branch.Selection
	chats      []webchat.Chat

	chatWaiters    []chan []webchat.Chat
	messageWaiters map[string][]chan []webchat.Message
	sentWaiters    []chan webchat.MessageSentEvent
}

// New builds a Client. Call Connect to start receiving events.
func New(cfg Config) *Client {
	c := &Client{
		store:          store.New(cfg.StoreBaseURL, cfg.HTTPClient),
		registry:       NewRegistry(),
		onPath:         cfg.OnPath,
		onChats:        cfg.OnChats,
		messages:       make(map[string]map[string]webchat.Message),
		selections:     make(map[string]branch.Selection),
		messageWaiters: make(map[string][]chan []webchat.Message),
	}
	c.sup = NewSupervisor(SupervisorConfig{
		DuplexURL:      cfg.DuplexURL,
		Origin:         cfg.Origin,
		DisableDuplex:  cfg.DisableDuplex,
		ConnectTimeout: cfg.ConnectTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
		PollInterval:   cfg.PollInterval,
	}, c.store, c.registry, c, cfg.OnState)
	return c
}

// Connect starts real-time delivery, duplex when available, polling
// otherwise.
func (c *Client) Connect(ctx context.Context) {
	c.sup.Connect(ctx)
}

// Disconnect stops delivery and cancels pending timers. Results of in-flight
// calls are ignored once the client is idle.
func (c *Client) Disconnect() {
	c.sup.Disconnect()
}

// State returns the connection state.
func (c *Client) State() State {
	return c.sup.State()
}

// SetFilters scopes the chat list subscription.
func (c *Client) SetFilters(filters map[string]string) {
	c.sup.SetFilters(filters)
}

// SubscribeToChat makes chatID the live chat.
func (c *Client) SubscribeToChat(chatID string) {
	c.sup.SubscribeToChat(chatID)
}

// UnsubscribeFromChat drops the live chat subscription.
func (c *Client) UnsubscribeFromChat(chatID string) {
	c.sup.UnsubscribeFromChat(chatID)
}

// SetPollInterval adjusts the polling period at runtime.
func (c *Client) SetPollInterval(interval time.Duration) {
	c.sup.SetPollInterval(interval)
}

// SendMessage submits a message over the duplex session when one exists,
// falling back to the store path otherwise. The returned message is the
// stored record; its ChatID is authoritative for new conversations.
func (c *Client) SendMessage(ctx context.Context, text, chatID string, opts SendOptions) (webchat.Message, error) {
	replyTo := opts.ReplyToMessageID
	if replyTo == "" && chatID != "" {
		replyTo = c.lastCounterpartMessageID(chatID)
	}

	if c.sup.State() == StateConnectedDuplex {
		msg, err := c.sendDuplex(ctx, text, chatID, replyTo, opts.Metadata)
		if err == nil || !errors.Is(err, ErrNoDuplexSession) {
			return msg, err
		}
		// The session dropped mid-call; use the store path instead.
	}

	msg, err := c.store.SendMessage(ctx, store.SendRequest{
		Text:             text,
		ChatID:           chatID,
		ReplyToMessageID: replyTo,
		Metadata:         opts.Metadata,
	})
	if err != nil {
		return webchat.Message{}, err
	}
	c.merge(msg.ChatID, []webchat.Message{msg})
	return msg, nil
}

func (c *Client) sendDuplex(ctx context.Context, text, chatID, replyTo string, metadata map[string]any) (webchat.Message, error) {
	waiter := make(chan webchat.MessageSentEvent, 1)
	c.mu.Lock()
	c.sentWaiters = append(c.sentWaiters, waiter)
	c.mu.Unlock()

	err := c.sup.Send(webchat.SendMessageAction{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: replyTo,
		Metadata:         metadata,
	})
	if err != nil {
		c.dropSentWaiter(waiter)
		return webchat.Message{}, err
	}

	select {
	case <-ctx.Done():
		c.dropSentWaiter(waiter)
		return webchat.Message{}, ctx.Err()
	case sent := <-waiter:
		if !sent.Success {
			if sent.Error == "" {
				sent.Error = "failed to send message"
			}
			return webchat.Message{}, fmt.Errorf("webchat: %s", sent.Error)
		}
		if sent.Message == nil {
			return webchat.Message{}, fmt.Errorf("webchat: message_sent without message")
		}
		c.merge(sent.Message.ChatID, []webchat.Message{*sent.Message})
		return *sent.Message, nil
	}
}

// GetChats lists chats, correlated over duplex or fetched from the store.
// Nil filters reuse the registry's last-set filters.
func (c *Client) GetChats(ctx context.Context, filters map[string]string) ([]webchat.Chat, error) {
	if filters == nil {
		filters = c.registry.Filters()
	}

	if c.sup.State() == StateConnectedDuplex {
		waiter := make(chan []webchat.Chat, 1)
		c.mu.Lock()
		c.chatWaiters = append(c.chatWaiters, waiter)
		c.mu.Unlock()

		if err := c.sup.Send(webchat.GetChatsAction{Filters: filters}); err == nil {
			select {
			case <-ctx.Done():
				c.dropChatWaiter(waiter)
				return nil, ctx.Err()
			case chats := <-waiter:
				return chats, nil
			}
		}
		c.dropChatWaiter(waiter)
	}

	chats, err := c.store.GetChats(ctx, filters)
	if err != nil {
		return nil, err
	}
	c.setChats(chats)
	return chats, nil
}

// GetMessages fetches a chat's recent messages, correlated by chat id over
// duplex or fetched from the store. The result is merged into local state
// with de-duplication by message id.
func (c *Client) GetMessages(ctx context.Context, chatID string, limit int) ([]webchat.Message, error) {
	if c.sup.State() == StateConnectedDuplex {
		waiter := make(chan []webchat.Message, 1)
		c.mu.Lock()
		c.messageWaiters[chatID] = append(c.messageWaiters[chatID], waiter)
		c.mu.Unlock()

		if err := c.sup.Send(webchat.GetMessagesAction{ChatID: chatID, Limit: limit}); err == nil {
			select {
			case <-ctx.Done():
				c.dropMessageWaiter(chatID, waiter)
				return nil, ctx.Err()
			case messages := <-waiter:
				return messages, nil
			}
		}
		c.dropMessageWaiter(chatID, waiter)
	}

	page, err := c.store.GetMessages(ctx, chatID, limit, "", "")
	if err != nil {
		return nil, err
	}
	c.merge(chatID, page.Messages)
	return page.Messages, nil
}

// LoadOlder pages history backwards from the oldest locally-known message.
// It always uses the store path; the feed has no backwards cursor.
func (c *Client) LoadOlder(ctx context.Context, chatID string, limit int) ([]webchat.Message, error) {
	beforeID := ""
	c.mu.Lock()
	if byID := c.messages[chatID]; len(byID) > 0 {
		all := make([]webchat.Message, 0, len(byID))
		for _, msg := range byID {
			all = append(all, msg)
		}
		webchat.SortMessages(all)
		beforeID = all[0].ID
	}
	c.mu.Unlock()

	page, err := c.store.GetMessages(ctx, chatID, limit, beforeID, "")
	if err != nil {
		return nil, err
	}
	c.merge(chatID, page.Messages)
	return page.Messages, nil
}

// UpdateChat renames a chat through the store.
func (c *Client) UpdateChat(ctx context.Context, chatID, name string) error {
	if err := c.store.UpdateChat(ctx, chatID, name); err != nil {
		return err
	}
	c.mu.Lock()
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			c.chats[i].Name = name
		}
	}
	chats := append([]webchat.Chat(nil), c.chats...)
	c.mu.Unlock()
	c.notifyChats(chats)
	return nil
}

// DeleteChat deletes a chat. Explicit deletion is the only path that removes
// a chat from local state.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	if err := c.store.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.messages, chatID)
	delete(c.selections, chatID)
	kept := c.chats[:0]
	for _, chat := range c.chats {
		if chat.ID != chatID {
			kept = append(kept, chat)
		}
	}
	c.chats = kept
	chats := append([]webchat.Chat(nil), c.chats...)
	c.mu.Unlock()
	c.notifyChats(chats)
	return nil
}

// VisiblePath resolves the chat's current visible path.
func (c *Client) VisiblePath(chatID string) []branch.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(chatID)
}

// Messages returns the chat's merged messages sorted by (timestamp, id).
func (c *Client) Messages(chatID string) []webchat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	byID := c.messages[chatID]
	all := make([]webchat.Message, 0, len(byID))
	for _, msg := range byID {
		all = append(all, msg)
	}
	webchat.SortMessages(all)
	return all
}

// Navigate moves the chat's branch selection for groupID and re-resolves the
// whole path. Boundary navigation is a no-op.
func (c *Client) Navigate(chatID, groupID string, dir branch.Direction) {
	c.mu.Lock()
	selection := c.selectionLocked(chatID)
	all := c.messagesLocked(chatID)
	changed := branch.Navigate(all, selection, groupID, dir)
	c.mu.Unlock()
	if changed {
		c.notifyPath(chatID)
	}
}

// HandleEvent merges inbound feed traffic into local state. Part of
// EventHandler; called by the supervisor for whichever transport is active.
func (c *Client) HandleEvent(event webchat.Event) {
	if c.sup.State() == StateIdle {
		// Stale delivery after Disconnect.
		return
	}
	switch e := event.(type) {
	case webchat.NewMessageEvent:
		chatID := e.ChatID
		if chatID == "" {
			chatID = e.Message.ChatID
		}
		c.merge(chatID, []webchat.Message{e.Message})
	case webchat.MessagesListEvent:
		c.fulfillMessages(e.ChatID, e.Messages)
	case webchat.ChatsListEvent:
		c.fulfillChats(e.Chats)
	case webchat.ChatUpdateEvent:
		c.applyChatUpdate(e.Chat)
	case webchat.MessageSentEvent:
		c.fulfillSent(e)
	}
}

// merge de-duplicates messages by id into the chat's local state and, when
// anything new arrived, re-resolves and notifies the path handler. Brief
// duplication across a transport switch collapses here.
func (c *Client) merge(chatID string, incoming []webchat.Message) {
	if chatID == "" || len(incoming) == 0 {
		return
	}
	c.mu.Lock()
	byID := c.messages[chatID]
	if byID == nil {
		byID = make(map[string]webchat.Message)
		c.messages[chatID] = byID
	}
	changed := false
	for _, msg := range incoming {
		if msg.ID == "" {
			continue
		}
		if _, ok := byID[msg.ID]; ok {
			continue
		}
		byID[msg.ID] = msg
		changed = true
	}
	c.mu.Unlock()
	if changed {
		c.notifyPath(chatID)
	}
}

func (c *Client) fulfillMessages(chatID string, messages []webchat.Message) {
	c.mu.Lock()
	waiters := c.messageWaiters[chatID]
	delete(c.messageWaiters, chatID)
	c.mu.Unlock()
	for _, waiter := range waiters {
		waiter <- messages
	}
	c.merge(chatID, messages)
}

func (c *Client) fulfillChats(chats []webchat.Chat) {
	c.mu.Lock()
	waiters := c.chatWaiters
	c.chatWaiters = nil
	c.mu.Unlock()
	for _, waiter := range waiters {
		waiter <- chats
	}
	c.setChats(chats)
}

func (c *Client) fulfillSent(event webchat.MessageSentEvent) {
	c.mu.Lock()
	var waiter chan webchat.MessageSentEvent
	if len(c.sentWaiters) > 0 {
		waiter = c.sentWaiters[0]
		c.sentWaiters = c.sentWaiters[1:]
	}
	c.mu.Unlock()
	if waiter != nil {
		waiter <- event
		return
	}
	// Unsolicited confirmation, e.g. after the caller gave up; keep the
	// message so the path stays current.
	if event.Success && event.Message != nil {
		c.merge(event.Message.ChatID, []webchat.Message{*event.Message})
	}
}

func (c *Client) applyChatUpdate(updated webchat.Chat) {
	c.mu.Lock()
	found := false
	for i := range c.chats {
		if c.chats[i].ID == updated.ID {
			c.chats[i] = updated
			found = true
		}
	}
	if !found {
		c.chats = append(c.chats, updated)
	}
	chats := append([]webchat.Chat(nil), c.chats...)
	c.mu.Unlock()
	c.notifyChats(chats)
}

func (c *Client) setChats(chats []webchat.Chat) {
	c.mu.Lock()
	c.chats = append([]webchat.Chat(nil), chats...)
	c.mu.Unlock()
	c.notifyChats(chats)
}

// lastCounterpartMessageID walks the visible path backwards for the most
// recent counterpart message, the default reply target.
func (c *Client) lastCounterpartMessageID(chatID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := c.resolveLocked(chatID)
	for i := len(path) - 1; i >= 0; i-- {
		outgoing := path[i].Message.IsOutgoing
		if outgoing != nil && *outgoing {
			return path[i].Message.ID
		}
	}
	return ""
}

func (c *Client) resolveLocked(chatID string) []branch.Entry {
	return branch.Resolve(c.messagesLocked(chatID), c.selectionLocked(chatID))
}

func (c *Client) messagesLocked(chatID string) []webchat.Message {
	byID := c.messages[chatID]
	all := make([]webchat.Message, 0, len(byID))
	for _, msg := range byID {
		all = append(all, msg)
	}
	return all
}

func (c *Client) selectionLocked(chatID string) branch.Selection {
	selection := c.selections[chatID]
	if selection == nil {
		selection = branch.Selection{}
		c.selections[chatID] = selection
	}
	return selection
}

func (c *Client) notifyPath(chatID string) {
	if c.onPath == nil {
		return
	}
	c.onPath(chatID, c.VisiblePath(chatID))
}

func (c *Client) notifyChats(chats []webchat.Chat) {
	if c.onChats != nil {
		c.onChats(chats)
	}
}

func (c *Client) dropSentWaiter(target chan webchat.MessageSentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, waiter := range c.sentWaiters {
		if waiter == target {
			c.sentWaiters = append(c.sentWaiters[:i], c.sentWaiters[i+1:]...)
			return
		}
	}
}

func (c *Client) dropChatWaiter(target chan []webchat.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, waiter := range c.chatWaiters {
		if waiter == target {
			c.chatWaiters = append(c.chatWaiters[:i], c.chatWaiters[i+1:]...)
			return
		}
	}
}

func (c *Client) dropMessageWaiter(chatID string, target chan []webchat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.messageWaiters[chatID]
	for i, waiter := range waiters {
		if waiter == target {
			c.messageWaiters[chatID] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}
