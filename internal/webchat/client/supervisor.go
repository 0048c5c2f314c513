package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/webchat/internal/webchat"
	"github.com/louisbranch/webchat/internal/webchat/store"
)

// State is the supervisor's connection state. Connected states carry the
// transport kind, since the two never overlap.
type State int

const (
	StateIdle State = iota
	StateConnectingDuplex
	StateConnectedDuplex
	StateConnectedPolling
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnectingDuplex:
		return "connecting"
	case StateConnectedDuplex:
		return "connected(duplex)"
	case StateConnectedPolling:
		return "connected(polling)"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Connected reports whether either transport is live.
func (s State) Connected() bool {
	return s == StateConnectedDuplex || s == StateConnectedPolling
}

// Transport names the live transport kind.
type Transport int

const (
	TransportNone Transport = iota
	TransportDuplex
	TransportPolling
)

func (t Transport) String() string {
	switch t {
	case TransportDuplex:
		return "duplex"
	case TransportPolling:
		return "polling"
	default:
		return "none"
	}
}

// TransportOf returns the transport a state runs on.
func (s State) TransportOf() Transport {
	switch s {
	case StateConnectedDuplex:
		return TransportDuplex
	case StateConnectedPolling:
		return TransportPolling
	default:
		return TransportNone
	}
}

// SupervisorConfig sets transport endpoints and timing contracts.
type SupervisorConfig struct {
	// DuplexURL is the event feed endpoint (ws:// or wss://). Empty disables
	// duplex entirely.
	DuplexURL string
	// Origin is the websocket handshake origin; defaults to the duplex URL's
	// http form when empty.
	Origin string
	// DisableDuplex forces polling from the first connect.
	DisableDuplex bool

	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	PollInterval   time.Duration
}

// Supervisor owns transport selection, retry, and fallback. It is the only
// component that decides which transport is active; everything else reads the
// state and routes through it.
//
// Fallback is permanent for the lifetime of the instance: once a duplex
// attempt has failed, repeated upgrade probes would only add latency on top
// of a working polling path, so the supervisor stays on polling.
type Supervisor struct {
	cfg      SupervisorConfig
	store    *store.Client
	registry *Registry
	handler  EventHandler
	onState  func(State)

	mu             sync.Mutex
	state          State
	duplexGivenUp  bool
	duplex         *duplexChannel
	polling        *pollingChannel
	reconnectTimer *time.Timer
	connID         string
}

// NewSupervisor wires a supervisor to its collaborators. handler receives
// every inbound event from the active channel; onState (optional) observes
// state transitions for UI indicators.
func NewSupervisor(cfg SupervisorConfig, storeClient *store.Client, registry *Registry, handler EventHandler, onState func(State)) *Supervisor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DuplexURL == "" {
		cfg.DisableDuplex = true
	}
	return &Supervisor{
		cfg:      cfg,
		store:    storeClient,
		registry: registry,
		handler:  handler,
		onState:  onState,
	}
}

// Connect starts the transport. A no-op unless Idle. Connection failures are
// absorbed by fallback, never returned.
func (s *Supervisor) Connect(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.connID = uuid.NewString()[:8]
	if s.cfg.DisableDuplex || s.duplexGivenUp {
		s.startPollingLocked()
		s.mu.Unlock()
		s.notify()
		return
	}
	s.state = StateConnectingDuplex
	s.mu.Unlock()
	s.notify()

	s.attemptDuplex(ctx)
}

// Disconnect is valid from any state, idempotent, and terminal for any
// pending reconnection: it closes the active channel and cancels timers.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	timer := s.reconnectTimer
	s.reconnectTimer = nil
	duplex := s.duplex
	s.duplex = nil
	polling := s.polling
	s.polling = nil
	s.state = StateIdle
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if duplex != nil {
		_ = duplex.Close()
	}
	if polling != nil {
		_ = polling.Close()
	}
	s.notify()
}

// Send writes an action over the duplex session. It fails fast with
// ErrNoDuplexSession rather than queueing; callers use the request/response
// path when no duplex session exists.
func (s *Supervisor) Send(action webchat.Action) error {
	s.mu.Lock()
	duplex := s.duplex
	live := s.state == StateConnectedDuplex && duplex != nil
	s.mu.Unlock()
	if !live {
		return ErrNoDuplexSession
	}
	return duplex.Send(action)
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetFilters records chat-list filters and pushes them on a live duplex
// session. Without one, the registry keeps them for replay.
func (s *Supervisor) SetFilters(filters map[string]string) {
	s.pushAction(s.registry.SetFilters(filters))
}

// SubscribeToChat makes chatID the live chat on whichever transport is
// active.
func (s *Supervisor) SubscribeToChat(chatID string) {
	action := s.registry.SubscribeToChat(chatID)
	s.mu.Lock()
	polling := s.polling
	s.mu.Unlock()
	if polling != nil {
		polling.SetChatID(chatID)
	}
	s.pushAction(action)
}

// UnsubscribeFromChat drops the chat subscription.
func (s *Supervisor) UnsubscribeFromChat(chatID string) {
	action := s.registry.UnsubscribeFromChat(chatID)
	s.mu.Lock()
	polling := s.polling
	s.mu.Unlock()
	if polling != nil {
		polling.SetChatID(s.registry.ChatID())
	}
	s.pushAction(action)
}

// SetPollInterval re-arms the polling period at runtime and becomes the
// default for any later polling start.
func (s *Supervisor) SetPollInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	s.cfg.PollInterval = interval
	polling := s.polling
	s.mu.Unlock()
	if polling != nil {
		polling.SetInterval(interval)
	}
}

// HandleEvent forwards channel traffic to the consumer. Part of EventSink.
func (s *Supervisor) HandleEvent(event webchat.Event) {
	if unknown, ok := event.(webchat.UnknownEvent); ok {
		log.Printf("webchat: conn %s: dropping unknown envelope type %q", s.connectionID(), unknown.Type)
		return
	}
	s.handler.HandleEvent(event)
}

// ChannelClosed reacts to an unexpected duplex close: one delayed retry, then
// permanent fallback. Part of EventSink.
func (s *Supervisor) ChannelClosed(err error) {
	s.mu.Lock()
	if s.state != StateConnectedDuplex {
		s.mu.Unlock()
		return
	}
	s.duplex = nil
	s.state = StateReconnecting
	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectDelay, s.retryDuplex)
	connID := s.connID
	s.mu.Unlock()

	if err != nil {
		log.Printf("webchat: conn %s: duplex session closed: %v", connID, err)
	} else {
		log.Printf("webchat: conn %s: duplex session closed", connID)
	}
	s.notify()
}

func (s *Supervisor) retryDuplex() {
	s.mu.Lock()
	if s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	s.state = StateConnectingDuplex
	s.mu.Unlock()
	s.notify()

	s.attemptDuplex(context.Background())
}

// attemptDuplex runs one duplex open from ConnectingDuplex and settles into
// ConnectedDuplex or permanent polling.
func (s *Supervisor) attemptDuplex(ctx context.Context) {
	channel := newDuplexChannel(s.cfg.DuplexURL, s.cfg.Origin, s.cfg.ConnectTimeout, s)
	err := channel.Open(ctx)

	s.mu.Lock()
	if s.state != StateConnectingDuplex {
		// Disconnected while dialing; the result no longer matters.
		s.mu.Unlock()
		_ = channel.Close()
		return
	}
	if err != nil {
		log.Printf("webchat: conn %s: duplex connect failed, falling back to polling: %v", s.connID, err)
		s.duplexGivenUp = true
		s.startPollingLocked()
		s.mu.Unlock()
		s.notify()
		return
	}
	s.duplex = channel
	s.state = StateConnectedDuplex
	s.mu.Unlock()
	s.notify()

	if err := s.registry.Replay(channel.Send); err != nil {
		log.Printf("webchat: conn %s: subscription replay failed: %v", s.connID, err)
	}
}

func (s *Supervisor) startPollingLocked() {
	polling := newPollingChannel(s.store, s.cfg.PollInterval, s)
	polling.SetChatID(s.registry.ChatID())
	_ = polling.Open(context.Background())
	s.polling = polling
	s.state = StateConnectedPolling
}

// pushAction emits a subscription action on the live duplex session. Without
// one the registry already holds the state for replay, so ErrNoDuplexSession
// is silence, not failure.
func (s *Supervisor) pushAction(action webchat.Action) {
	if action == nil {
		return
	}
	if err := s.Send(action); err != nil && !errors.Is(err, ErrNoDuplexSession) {
		log.Printf("webchat: conn %s: push subscription: %v", s.connectionID(), err)
	}
}

func (s *Supervisor) connectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

func (s *Supervisor) notify() {
	if s.onState != nil {
		s.onState(s.State())
	}
}
