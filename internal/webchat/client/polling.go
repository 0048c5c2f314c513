package client

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/webchat/internal/webchat"
	"github.com/louisbranch/webchat/internal/webchat/store"
)

// pollingChannel fetches new messages for the subscribed chat on a fixed
// interval. There is no persistent connection, so Open succeeds immediately;
// sends go through the request/response path, never this channel.
type pollingChannel struct {
	store *store.Client
	sink  EventSink

	mu            sync.Mutex
	interval      time.Duration
	chatID        string
	lastMessageID string
	rearm         chan time.Duration
	stop          chan struct{}
	running       bool
}

func newPollingChannel(storeClient *store.Client, interval time.Duration, sink EventSink) *pollingChannel {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &pollingChannel{
		store:    storeClient,
		sink:     sink,
		interval: interval,
		rearm:    make(chan time.Duration, 1),
		stop:     make(chan struct{}),
	}
}

func (c *pollingChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	go c.loop()
	return nil
}

func (c *pollingChannel) Send(action webchat.Action) error {
	return errPollingSend
}

func (c *pollingChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	close(c.stop)
	return nil
}

// SetChatID switches the polled chat. The seen-message cursor resets so the
// next tick fetches the new chat's recent history.
func (c *pollingChannel) SetChatID(chatID string) {
	c.mu.Lock()
	if c.chatID != chatID {
		c.chatID = chatID
		c.lastMessageID = ""
	}
	c.mu.Unlock()
}

// SetInterval re-arms the poll timer with a new period. The old timer is
// dropped; the next tick happens one full new period from now.
func (c *pollingChannel) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.mu.Lock()
	c.interval = interval
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}
	select {
	case c.rearm <- interval:
	default:
	}
}

func (c *pollingChannel) loop() {
	c.mu.Lock()
	interval := c.interval
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case next := <-c.rearm:
			ticker.Reset(next)
		case <-ticker.C:
			c.poll()
		}
	}
}

func (c *pollingChannel) poll() {
	c.mu.Lock()
	chatID := c.chatID
	afterID := c.lastMessageID
	interval := c.interval
	c.mu.Unlock()

	if chatID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()

	page, err := c.store.GetMessages(ctx, chatID, store.DefaultMessageLimit, "", afterID)
	if err != nil {
		log.Printf("webchat: poll %s: %v", chatID, err)
		return
	}
	if len(page.Messages) == 0 {
		return
	}

	c.mu.Lock()
	// The subscription may have moved while the fetch was in flight.
	stale := c.chatID != chatID
	if !stale {
		c.lastMessageID = page.Messages[len(page.Messages)-1].ID
	}
	c.mu.Unlock()
	if stale {
		return
	}

	for _, msg := range page.Messages {
		c.sink.HandleEvent(webchat.NewMessageEvent{ChatID: chatID, Message: msg})
	}
}
