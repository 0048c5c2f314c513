package client

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/webchat/internal/webchat"
)

// feedServer fakes the duplex event feed for tests: it records inbound
// actions and lets tests script responses.
type feedServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	actions  []map[string]any
	onAction func(conn *websocket.Conn, action map[string]any)
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	f := &feedServer{t: t}
	handler := websocket.Handler(func(conn *websocket.Conn) {
		f.serve(conn)
	})
	f.srv = httptest.NewServer(handler)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *feedServer) origin() string {
	return f.srv.URL
}

func (f *feedServer) serve(conn *websocket.Conn) {
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()

	decoder := json.NewDecoder(conn)
	for {
		var action map[string]any
		if err := decoder.Decode(&action); err != nil {
			if !errors.Is(err, io.EOF) {
				return
			}
			return
		}
		f.mu.Lock()
		f.actions = append(f.actions, action)
		handle := f.onAction
		f.mu.Unlock()
		if handle != nil {
			handle(conn, action)
		}
	}
}

func (f *feedServer) setOnAction(handle func(conn *websocket.Conn, action map[string]any)) {
	f.mu.Lock()
	f.onAction = handle
	f.mu.Unlock()
}

func (f *feedServer) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *feedServer) recordedActions() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.actions...)
}

// waitActions blocks until at least n actions arrived.
func (f *feedServer) waitActions(n int) []map[string]any {
	f.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		actions := f.recordedActions()
		if len(actions) >= n {
			return actions
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.t.Fatalf("timed out waiting for %d actions, have %d", n, len(f.recordedActions()))
	return nil
}

// broadcast pushes one envelope to every live session.
func (f *feedServer) broadcast(v any) {
	f.t.Helper()
	f.mu.Lock()
	conns := append([]*websocket.Conn(nil), f.conns...)
	f.mu.Unlock()
	for _, conn := range conns {
		_ = websocket.JSON.Send(conn, v)
	}
}

// dropConnections closes live sessions without stopping the server, which
// the client sees as an unexpected close.
func (f *feedServer) dropConnections() {
	f.mu.Lock()
	conns := append([]*websocket.Conn(nil), f.conns...)
	f.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// recordingSink collects channel output for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []webchat.Event
	closed []error
}

func (s *recordingSink) HandleEvent(event webchat.Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) ChannelClosed(err error) {
	s.mu.Lock()
	s.closed = append(s.closed, err)
	s.mu.Unlock()
}

func (s *recordingSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.closed)
}

func (s *recordingSink) waitEvents(t *testing.T, n int) []webchat.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.events) >= n {
			events := append([]webchat.Event(nil), s.events...)
			s.mu.Unlock()
			return events
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, s.eventCount())
	return nil
}

// newSilentListener accepts TCP connections but never answers the websocket
// handshake, so dials hang until a timeout fires.
func newSilentListener(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })
	go func() {
		var conns []net.Conn
		defer func() {
			for _, conn := range conns {
				_ = conn.Close()
			}
		}()
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()
	return listener
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}
