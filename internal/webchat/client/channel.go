package client

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/webchat/internal/webchat"
)

// Default timing contracts. Every value is configurable so tests can run the
// same state machine at millisecond scale.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultPollInterval   = 5 * time.Second
)

// ErrNoDuplexSession is returned by duplex-path sends when no duplex session
// exists. Callers are expected to use the request/response path instead of
// queueing.
var ErrNoDuplexSession = errors.New("webchat: no duplex session")

var (
	errChannelClosed  = errors.New("webchat: channel closed")
	errConnectTimeout = errors.New("webchat: duplex connect timeout")
	errPollingSend    = errors.New("webchat: polling channel cannot send")
)

// Channel wraps one live connection attempt, duplex or polling, behind a
// uniform send interface. Inbound traffic and lifecycle notifications go to
// the EventSink supplied at construction.
type Channel interface {
	Open(ctx context.Context) error
	Send(action webchat.Action) error
	Close() error
}

// EventSink receives a channel's inbound events and its close notification.
// One sink per channel; a deliberate Close does not notify.
type EventSink interface {
	HandleEvent(event webchat.Event)
	ChannelClosed(err error)
}

// EventHandler consumes events the supervisor forwards from whichever
// channel is active.
type EventHandler interface {
	HandleEvent(event webchat.Event)
}
