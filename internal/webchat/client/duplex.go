package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/webchat/internal/webchat"
)

// duplexChannel holds one persistent websocket session against the event
// feed. Frames are JSON envelopes, one per websocket message.
type duplexChannel struct {
	url     string
	origin  string
	timeout time.Duration
	sink    EventSink

	mu     sync.Mutex
	conn   *websocket.Conn
	enc    *json.Encoder
	closed bool
}

func newDuplexChannel(url, origin string, timeout time.Duration, sink EventSink) *duplexChannel {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &duplexChannel{url: url, origin: origin, timeout: timeout, sink: sink}
}

// Open dials the feed endpoint. It resolves on a completed handshake or
// rejects on error, context cancellation, or the connect timeout. The timeout
// bounds the whole attempt, not just the TCP connect.
func (c *duplexChannel) Open(ctx context.Context) error {
	config, err := websocket.NewConfig(c.url, c.origin)
	if err != nil {
		return fmt.Errorf("duplex config: %w", err)
	}
	config.Dialer = &net.Dialer{Timeout: c.timeout}

	results := make(chan dialResult, 1)
	go func() {
		conn, dialErr := websocket.DialConfig(config)
		results <- dialResult{conn: conn, err: dialErr}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case result := <-results:
		if result.err != nil {
			return fmt.Errorf("dial duplex: %w", result.err)
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = result.conn.Close()
			return errChannelClosed
		}
		c.conn = result.conn
		c.enc = json.NewEncoder(result.conn)
		c.mu.Unlock()
		go c.readLoop(result.conn)
		return nil
	case <-timer.C:
		go discardDial(results)
		return errConnectTimeout
	case <-ctx.Done():
		go discardDial(results)
		return ctx.Err()
	}
}

type dialResult struct {
	conn *websocket.Conn
	err  error
}

// discardDial releases the socket when an abandoned dial eventually lands.
func discardDial(results <-chan dialResult) {
	if result := <-results; result.conn != nil {
		_ = result.conn.Close()
	}
}

// Send writes one action envelope. It fails fast when the session is gone.
func (c *duplexChannel) Send(action webchat.Action) error {
	data, err := webchat.EncodeAction(action)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.enc == nil {
		return ErrNoDuplexSession
	}
	if err := c.enc.Encode(json.RawMessage(data)); err != nil {
		return fmt.Errorf("send duplex frame: %w", err)
	}
	return nil
}

// Close tears the session down. Idempotent; a deliberate close suppresses the
// sink's close notification.
func (c *duplexChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.enc = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *duplexChannel) readLoop(conn *websocket.Conn) {
	decoder := json.NewDecoder(conn)
	var loopErr error
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if !errors.Is(err, io.EOF) {
				loopErr = err
			}
			break
		}
		event, err := webchat.DecodeEvent(raw)
		if err != nil {
			// Protocol failure: logged, dropped, never fatal to the session.
			log.Printf("webchat: dropping malformed envelope: %v", err)
			continue
		}
		c.sink.HandleEvent(event)
	}

	c.mu.Lock()
	deliberate := c.closed
	c.closed = true
	c.conn = nil
	c.enc = nil
	c.mu.Unlock()
	_ = conn.Close()

	if !deliberate {
		c.sink.ChannelClosed(loopErr)
	}
}
