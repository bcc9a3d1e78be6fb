package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/collabhq/workspace-sync/internal/connection"
	"github.com/collabhq/workspace-sync/internal/events"
	"github.com/collabhq/workspace-sync/internal/model"
	"github.com/collabhq/workspace-sync/internal/state"
)

// Synchronizer binds a connection.Manager to a workspace/user pair,
// multiplexes inbound updates to per-workspace subscribers, and resolves
// conflicting concurrent edits.
type Synchronizer struct {
	cfg    Config
	conn   connection.Manager
	store  state.Store
	logger *slog.Logger

	emitter *events.Emitter

	// subs keys handlers by workspace ID; the emitter deletes a workspace
	// entry once its last subscriber unsubscribes.
	subs *events.Emitter

	mu          sync.Mutex
	workspaceID string
	userID      string
	active      bool
	strategy    Strategy
}

// New creates a Synchronizer over an existing connection manager and state
// store. A nil logger falls back to slog.Default().
func New(cfg Config, conn connection.Manager, store state.Store, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Synchronizer{
		cfg:      cfg,
		conn:     conn,
		store:    store,
		logger:   logger,
		emitter:  events.NewEmitter(logger),
		subs:     events.NewEmitter(logger),
		strategy: LastWriteWins,
	}

	conn.On(connection.EventStateChange, s.handleStateChange)
	conn.On(connection.EventMaxReconnectAttempts, func(p any) {
		s.emitter.Emit(EventConnectionFailed, p)
	})
	conn.On(model.TypeUpdate, s.handleUpdateEnvelope)

	return s
}

// Connect opens the connection for the given workspace/user pair and makes
// it the active context. The underlying open failure propagates; a
// reconnect stays scheduled either way.
func (s *Synchronizer) Connect(ctx context.Context, workspaceID, userID string) error {
	if workspaceID == "" || userID == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	s.workspaceID = workspaceID
	s.userID = userID
	s.active = true
	s.mu.Unlock()

	opts := connection.Options{
		EndpointURL:          s.cfg.EndpointURL,
		WorkspaceID:          workspaceID,
		UserID:               userID,
		Reconnect:            true,
		ReconnectInterval:    s.cfg.ReconnectInterval,
		MaxReconnectAttempts: s.cfg.MaxReconnectAttempts,
		HeartbeatInterval:    s.cfg.HeartbeatInterval,
	}

	if err := s.conn.Connect(ctx, opts); err != nil {
		return fmt.Errorf("connect workspace %s: %w", workspaceID, err)
	}

	s.logger.Info("workspace connected", "workspace", workspaceID, "user", userID)
	return nil
}

// Disconnect closes the connection and clears the active context.
// Subscriptions stay registered: a caller may reconnect and reuse them, and
// removal is the unsubscribe function's job.
func (s *Synchronizer) Disconnect() error {
	s.mu.Lock()
	s.workspaceID = ""
	s.userID = ""
	s.active = false
	s.mu.Unlock()

	return s.conn.Disconnect()
}

// IsConnected reports whether the underlying connection is open.
func (s *Synchronizer) IsConnected() bool {
	return s.conn.IsConnected()
}

// PushUpdate wraps the update in an sdui_update envelope and hands it to
// the connection layer, which writes or queues it.
func (s *Synchronizer) PushUpdate(workspaceID string, update model.Update) error {
	if workspaceID == "" {
		return ErrEmptyID
	}

	env := model.NewEnvelope(model.TypeUpdate, model.UpdatePayload{
		WorkspaceID: workspaceID,
		Update:      update,
	})

	if err := s.conn.Send(env); err != nil {
		return fmt.Errorf("push update to %s: %w", workspaceID, err)
	}

	s.logger.Debug("update pushed",
		"workspace", workspaceID,
		"type", update.Type(),
		"source", update.Source(),
		"message_id", env.MessageID,
	)
	return nil
}

// OnUpdate subscribes to updates for the active workspace. The returned
// function removes exactly this subscription; the workspace's entry
// disappears once its last subscriber is removed.
func (s *Synchronizer) OnUpdate(fn func(model.Update)) (func(), error) {
	s.mu.Lock()
	workspaceID := s.workspaceID
	active := s.active
	s.mu.Unlock()

	if !active {
		return nil, ErrNoWorkspace
	}

	off := s.subs.On(workspaceID, func(p any) {
		if u, ok := p.(model.Update); ok {
			fn(u)
		}
	})
	return off, nil
}

// On registers a lifecycle event handler and returns its removal function.
func (s *Synchronizer) On(event string, fn events.Handler) func() {
	return s.emitter.On(event, fn)
}

// SetConflictStrategy changes the active resolution strategy at runtime.
func (s *Synchronizer) SetConflictStrategy(strategy Strategy) error {
	if !strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	s.mu.Lock()
	s.strategy = strategy
	s.mu.Unlock()

	s.logger.Info("conflict strategy changed", "strategy", strategy)
	return nil
}

// ConflictStrategy returns the active resolution strategy.
func (s *Synchronizer) ConflictStrategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// ResolveConflict reconciles overlapping local and remote change sets under
// the active strategy. The full versions are accepted for caller context;
// the conflict set is computed from the change sets alone.
func (s *Synchronizer) ResolveConflict(localVersion, remoteVersion, localChanges, remoteChanges map[string]any) (*Resolution, error) {
	strategy := s.ConflictStrategy()

	res, err := resolve(strategy, localChanges, remoteChanges)
	if err != nil {
		return nil, err
	}

	if len(res.Conflicts) > 0 {
		s.logger.Info("conflict resolved",
			"strategy", strategy,
			"conflicts", res.Conflicts,
		)
	}
	return res, nil
}

// handleStateChange bridges connection state into synchronizer events.
func (s *Synchronizer) handleStateChange(p any) {
	sc, ok := p.(connection.StateChange)
	if !ok {
		return
	}

	s.emitter.Emit(EventConnectionStateChange, sc)
	switch sc.To {
	case connection.StateConnected:
		s.emitter.Emit(EventConnected, sc)
	case connection.StateDisconnected:
		s.emitter.Emit(EventDisconnected, sc)
	}
}

// handleUpdateEnvelope routes one inbound sdui_update: fetch canonical
// state, detect conflicts, fan out. It runs to completion before the
// connection layer delivers the next message, so updates never interleave.
func (s *Synchronizer) handleUpdateEnvelope(p any) {
	env, ok := p.(model.Inbound)
	if !ok {
		return
	}

	var payload model.UpdatePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.logger.Warn("dropping malformed update payload",
			"message_id", env.MessageID,
			"error", err,
		)
		return
	}
	if payload.WorkspaceID == "" {
		s.logger.Warn("dropping update without workspace", "message_id", env.MessageID)
		return
	}

	// Best-effort delivery beats strict consistency here: the transport
	// offers no delivery guarantees to begin with, so a failed state fetch
	// must not block the update.
	current, err := s.store.GetState(context.Background(), payload.WorkspaceID)
	if err != nil {
		s.logger.Warn("canonical state fetch failed, delivering anyway",
			"workspace", payload.WorkspaceID,
			"error", err,
		)
		current = nil
	}

	if detectConflict(current, payload.Update) {
		s.logger.Warn("conflicting concurrent update withheld from fan-out",
			"workspace", payload.WorkspaceID,
			"type", payload.Update.Type(),
		)
		s.emitter.Emit(EventConflictDetected, ConflictDetected{
			WorkspaceID: payload.WorkspaceID,
			Update:      payload.Update,
			State:       current,
		})
	} else {
		s.subs.Emit(payload.WorkspaceID, payload.Update)
	}

	s.emitter.Emit(EventUpdateReceived, UpdateReceived{
		WorkspaceID: payload.WorkspaceID,
		Update:      payload.Update,
	})
}

// detectConflict marks an update concurrent when it declares a base version
// older than the canonical state's version. Updates or states without
// version numbers never conflict.
func detectConflict(current map[string]any, update model.Update) bool {
	base, ok := update.BaseVersion()
	if !ok || current == nil {
		return false
	}

	var version int64
	switch v := current["version"].(type) {
	case float64:
		version = int64(v)
	case int64:
		version = v
	case int:
		version = int64(v)
	default:
		return false
	}

	return base < version
}
