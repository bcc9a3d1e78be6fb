package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/collabhq/workspace-sync/internal/events"
	"github.com/collabhq/workspace-sync/internal/model"
)

// Manager owns one logical connection to the collaboration server: the
// connection state machine, bounded reconnection with fixed backoff,
// periodic heartbeating, and a bounded outbound queue for envelopes
// accepted while the connection is down.
type Manager interface {
	// Connect opens the connection with the given options. No-op with a
	// warning if already connected or connecting.
	Connect(ctx context.Context, opts Options) error

	// Disconnect cancels all pending timers, closes the transport, and
	// clears the stored options. Idempotent.
	Disconnect() error

	// Send writes an envelope to the transport when connected, and queues
	// it otherwise. Transport failures degrade to queuing; the only error
	// returned is an envelope that cannot be serialized.
	Send(env model.Envelope) error

	// State returns the current connection state.
	State() State

	// IsConnected reports whether the state is connected.
	IsConnected() bool

	// On registers an event handler and returns its removal function.
	On(event string, fn events.Handler) func()

	// Stats returns current manager statistics.
	Stats() ManagerStats
}

// ManagerStats provides a snapshot of manager internals.
type ManagerStats struct {
	State             State
	QueueLen          int
	ReconnectAttempts int
}

// session is one live transport connection. The generation ties its
// goroutines and timers to the state that created them: a bumped
// generation means the session is stale and its callbacks must not act.
type session struct {
	client Client
	gen    uint64
	stop   chan struct{}
}

type manager struct {
	logger  *slog.Logger
	emitter *events.Emitter

	// newClient is swapped in tests.
	newClient func(ClientConfig, *slog.Logger) Client

	mu             sync.Mutex
	state          State
	opts           Options
	hasOpts        bool
	session        *session
	attempts       int
	queue          []model.Envelope
	gen            uint64
	reconnectTimer *time.Timer
}

// NewManager creates a Manager in the disconnected state.
func NewManager(logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &manager{
		logger:    logger,
		emitter:   events.NewEmitter(logger),
		newClient: NewClient,
		state:     StateDisconnected,
	}
}

func (m *manager) Connect(ctx context.Context, opts Options) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		m.logger.Warn("connect ignored, connection already active", "state", m.state)
		return nil
	}
	if opts.EndpointURL == "" {
		m.mu.Unlock()
		return ErrNoEndpoint
	}

	// A fresh connect supersedes any scheduled reconnect.
	m.cancelTimersLocked()

	opts.applyDefaults()
	m.opts = opts
	m.hasOpts = true
	m.attempts = 0
	m.mu.Unlock()

	return m.attemptConnect(ctx)
}

func (m *manager) Disconnect() error {
	m.mu.Lock()
	if m.state == StateDisconnected && !m.hasOpts {
		m.mu.Unlock()
		return nil
	}

	m.cancelTimersLocked()
	s := m.session
	m.session = nil
	m.opts = Options{}
	m.hasOpts = false
	m.attempts = 0
	m.mu.Unlock()

	if s != nil {
		s.client.Close()
	}
	m.setState(StateDisconnected)
	return nil
}

func (m *manager) Send(env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	m.mu.Lock()
	connected := m.state == StateConnected
	s := m.session
	m.mu.Unlock()

	if !connected || s == nil {
		m.enqueue(env)
		return nil
	}

	if err := s.client.Send(data); err != nil {
		m.logger.Warn("transport write failed, queuing envelope",
			"type", env.Type,
			"error", err,
		)
		m.enqueue(env)
	}
	return nil
}

func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *manager) IsConnected() bool {
	return m.State() == StateConnected
}

func (m *manager) On(event string, fn events.Handler) func() {
	return m.emitter.On(event, fn)
}

func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		State:             m.state,
		QueueLen:          len(m.queue),
		ReconnectAttempts: m.attempts,
	}
}

// attemptConnect performs one dial: transition to connecting, open the
// transport, and on success start the heartbeat and flush the queue. On
// failure it transitions to error and hands off to the reconnect path.
// The generation is captured before the dial and re-checked after it, so
// a Disconnect issued while the dial is in flight discards the result
// instead of resurrecting the connection.
func (m *manager) attemptConnect(ctx context.Context) error {
	m.mu.Lock()
	if !m.hasOpts {
		m.mu.Unlock()
		return ErrNoEndpoint
	}
	opts := m.opts
	gen := m.gen
	m.mu.Unlock()

	m.setState(StateConnecting)

	client := m.newClient(ClientConfig{
		URL:         opts.EndpointURL,
		WorkspaceID: opts.WorkspaceID,
		UserID:      opts.UserID,
	}, m.logger)

	err := client.Connect(ctx)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if err == nil {
			client.Close()
		}
		m.logger.Info("connection attempt superseded, discarding result")
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("transport open failed", "url", opts.EndpointURL, "error", err)
		m.setState(StateError)
		if opts.Reconnect {
			m.scheduleReconnect()
		}
		return fmt.Errorf("open transport: %w", err)
	}

	m.gen++
	s := &session{client: client, gen: m.gen, stop: make(chan struct{})}
	m.session = s
	m.attempts = 0
	m.mu.Unlock()

	m.setState(StateConnected)

	go m.pump(s)
	go m.heartbeat(s, opts.HeartbeatInterval)

	m.flushQueue()
	return nil
}

// scheduleReconnect arms the single-shot reconnect timer, or emits the
// terminal event once the attempt budget is spent.
func (m *manager) scheduleReconnect() {
	m.mu.Lock()
	if !m.hasOpts || !m.opts.Reconnect {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.opts.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Error("max reconnect attempts reached", "attempts", attempts)
		m.emitter.Emit(EventMaxReconnectAttempts, attempts)
		return
	}
	m.attempts++
	attempt := m.attempts
	maxAttempts := m.opts.MaxReconnectAttempts
	interval := m.opts.ReconnectInterval
	gen := m.gen
	m.mu.Unlock()

	m.setState(StateReconnecting)
	m.logger.Info("reconnect scheduled",
		"attempt", attempt,
		"max", maxAttempts,
		"interval", interval,
	)

	timer := time.AfterFunc(interval, func() {
		m.mu.Lock()
		stale := gen != m.gen
		m.reconnectTimer = nil
		m.mu.Unlock()
		if stale {
			return
		}
		m.attemptConnect(context.Background())
	})

	m.mu.Lock()
	m.reconnectTimer = timer
	m.mu.Unlock()
}

// cancelTimersLocked invalidates the reconnect timer and every running
// session goroutine by bumping the generation. Must be called with the
// lock held.
func (m *manager) cancelTimersLocked() {
	m.gen++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.session != nil {
		select {
		case <-m.session.stop:
		default:
			close(m.session.stop)
		}
	}
}

// pump routes one session's inbound messages and transport errors.
func (m *manager) pump(s *session) {
	for {
		select {
		case <-s.stop:
			return
		case err := <-s.client.Errors():
			m.handleTransportLoss(s, err)
			return
		case raw, ok := <-s.client.Messages():
			if !ok {
				m.handleTransportLoss(s, errors.New("transport closed"))
				return
			}
			m.handleInbound(raw)
		}
	}
}

// heartbeat keeps intermediaries from timing out the idle connection.
// The envelope carries no application semantics and any server ack is
// ignored.
func (m *manager) heartbeat(s *session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			env := model.NewEnvelope(model.TypeHeartbeat, model.HeartbeatPayload{
				Timestamp: time.Now().UnixMilli(),
			})
			if err := m.Send(env); err != nil {
				m.logger.Warn("heartbeat send failed", "error", err)
			}
		}
	}
}

// handleTransportLoss reacts to an unexpected closure: mid-connection
// failures and open failures share the same reconnection path.
func (m *manager) handleTransportLoss(s *session, cause error) {
	m.mu.Lock()
	if s.gen != m.gen {
		// A newer session or an explicit disconnect already superseded us.
		m.mu.Unlock()
		return
	}
	m.cancelTimersLocked()
	m.session = nil
	reconnect := m.hasOpts && m.opts.Reconnect
	m.mu.Unlock()

	s.client.Close()
	m.logger.Warn("connection lost", "error", cause)

	if reconnect {
		m.scheduleReconnect()
	} else {
		m.setState(StateError)
	}
}

// handleInbound parses one inbound frame and emits it. Malformed frames
// are logged and dropped; the connection stays open.
func (m *manager) handleInbound(raw RawMessage) {
	var env model.Inbound
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		m.logger.Warn("dropping malformed inbound message", "error", err)
		return
	}
	env.ReceivedAt = raw.ReceivedAt

	m.emitter.Emit(EventMessage, env)
	if env.Type != "" {
		m.emitter.Emit(env.Type, env)
	}
}

// enqueue appends to the bounded outbound queue, evicting the oldest
// entry on overflow.
func (m *manager) enqueue(env model.Envelope) {
	m.mu.Lock()
	if len(m.queue) >= OutboundQueueCapacity {
		evicted := m.queue[0]
		m.queue = m.queue[1:]
		m.logger.Warn("outbound queue full, evicting oldest envelope",
			"evicted_type", evicted.Type,
			"evicted_id", evicted.MessageID,
		)
	}
	m.queue = append(m.queue, env)
	n := len(m.queue)
	m.mu.Unlock()

	m.logger.Debug("envelope queued", "type", env.Type, "queue_len", n)
}

// flushQueue drains queued envelopes oldest-first; each re-enters Send.
func (m *manager) flushQueue() {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	pending := m.queue
	m.queue = nil
	m.mu.Unlock()

	m.logger.Info("flushing outbound queue", "count", len(pending))
	for _, env := range pending {
		m.Send(env)
	}
}

// setState transitions the state machine and emits the change. No
// transition is silent.
func (m *manager) setState(to State) {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()

	m.logger.Info("connection state changed", "from", from, "to", to)
	m.emitter.Emit(EventStateChange, StateChange{From: from, To: to})
}
