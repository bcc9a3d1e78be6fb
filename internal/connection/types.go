package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrNoEndpoint    = errors.New("endpoint URL required")
)

// State is the connection state of a Manager. A Manager is always in
// exactly one state; every transition fires a state_change event.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Event names emitted by a Manager. Inbound envelopes additionally fire an
// event named after their own type, so consumers can listen narrowly.
const (
	EventStateChange          = "state_change"
	EventMessage              = "message"
	EventMaxReconnectAttempts = "max_reconnect_attempts"
)

// StateChange is the payload of a state_change event.
type StateChange struct {
	From State
	To   State
}

// Default option values, applied by Connect for zero fields.
const (
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultHeartbeatInterval    = 30 * time.Second
)

// OutboundQueueCapacity bounds the queue of envelopes accepted while the
// connection is down. On overflow the oldest entry is evicted: recent
// workspace state supersedes earlier state, so the queue favors recency
// over full history.
const OutboundQueueCapacity = 100

// Options configures a single Connect call. The Manager owns the options
// for the lifetime of that connection attempt and clears them on
// Disconnect.
type Options struct {
	EndpointURL string
	WorkspaceID string
	UserID      string

	Reconnect            bool
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
}

// NewOptions returns Options with reconnection enabled and default tuning.
func NewOptions(endpointURL string) Options {
	return Options{
		EndpointURL:          endpointURL,
		Reconnect:            true,
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HeartbeatInterval:    DefaultHeartbeatInterval,
	}
}

// applyDefaults replaces non-positive tuning fields with the defaults.
// Negative intervals would panic the timer plumbing, so they are treated
// the same as unset. The Reconnect flag is taken as given; NewOptions is
// the way to get the enabled-by-default form.
func (o *Options) applyDefaults() {
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
}

// RawMessage wraps raw inbound bytes with the local receive timestamp.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a single transport client.
type ClientConfig struct {
	URL          string
	WorkspaceID  string
	UserID       string
	WriteTimeout time.Duration
	BufferSize   int
}
