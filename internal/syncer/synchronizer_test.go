package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/collabhq/workspace-sync/internal/connection"
	"github.com/collabhq/workspace-sync/internal/events"
	"github.com/collabhq/workspace-sync/internal/model"
	"github.com/collabhq/workspace-sync/internal/state"
)

// fakeConn is an in-process connection.Manager for synchronizer tests.
type fakeConn struct {
	emitter *events.Emitter

	mu         sync.Mutex
	sent       []model.Envelope
	connected  bool
	connectErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{emitter: events.NewEmitter(nil)}
}

func (f *fakeConn) Connect(ctx context.Context, opts connection.Options) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Send(env model.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeConn) State() connection.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return connection.StateConnected
	}
	return connection.StateDisconnected
}

func (f *fakeConn) IsConnected() bool { return f.State() == connection.StateConnected }

func (f *fakeConn) On(event string, fn events.Handler) func() {
	return f.emitter.On(event, fn)
}

func (f *fakeConn) Stats() connection.ManagerStats {
	return connection.ManagerStats{State: f.State()}
}

func (f *fakeConn) sentEnvelopes() []model.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

// inject delivers an inbound sdui_update as the connection layer would.
func (f *fakeConn) inject(t *testing.T, workspaceID string, update model.Update) {
	t.Helper()
	payload, err := json.Marshal(model.UpdatePayload{WorkspaceID: workspaceID, Update: update})
	if err != nil {
		t.Fatalf("marshal update payload: %v", err)
	}
	f.emitter.Emit(model.TypeUpdate, model.Inbound{
		Type:      model.TypeUpdate,
		Payload:   payload,
		Timestamp: 1,
		MessageID: "msg-test",
	})
}

func newTestSynchronizer(t *testing.T) (*Synchronizer, *fakeConn, *state.MemoryStore) {
	t.Helper()
	fc := newFakeConn()
	store := state.NewMemoryStore()
	s := New(Config{EndpointURL: "wss://collab.test/sync"}, fc, store, nil)
	return s, fc, store
}

func TestSynchronizer_ConnectValidation(t *testing.T) {
	s, _, _ := newTestSynchronizer(t)

	if err := s.Connect(context.Background(), "", "u1"); !errors.Is(err, ErrEmptyID) {
		t.Errorf("empty workspace: got %v, want ErrEmptyID", err)
	}
	if err := s.Connect(context.Background(), "w1", ""); !errors.Is(err, ErrEmptyID) {
		t.Errorf("empty user: got %v, want ErrEmptyID", err)
	}
}

func TestSynchronizer_ConnectPropagatesError(t *testing.T) {
	s, fc, _ := newTestSynchronizer(t)
	fc.connectErr = errors.New("dial refused")

	err := s.Connect(context.Background(), "w1", "u1")
	if err == nil || !errors.Is(err, fc.connectErr) {
		t.Errorf("expected wrapped dial error, got %v", err)
	}
}

func TestSynchronizer_OnUpdateRequiresWorkspace(t *testing.T) {
	s, _, _ := newTestSynchronizer(t)

	if _, err := s.OnUpdate(func(model.Update) {}); !errors.Is(err, ErrNoWorkspace) {
		t.Errorf("expected ErrNoWorkspace, got %v", err)
	}
}

func TestSynchronizer_UnsubscribeIsolation(t *testing.T) {
	s, fc, _ := newTestSynchronizer(t)
	if err := s.Connect(context.Background(), "w1", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var aCalls, bCalls int
	offA, err := s.OnUpdate(func(model.Update) { aCalls++ })
	if err != nil {
		t.Fatalf("OnUpdate A failed: %v", err)
	}
	offB, err := s.OnUpdate(func(model.Update) { bCalls++ })
	if err != nil {
		t.Fatalf("OnUpdate B failed: %v", err)
	}

	fc.inject(t, "w1", model.Update{"type": "layout"})
	if aCalls != 1 || bCalls != 1 {
		t.Fatalf("after first update: aCalls=%d bCalls=%d, want 1 1", aCalls, bCalls)
	}

	offA()
	fc.inject(t, "w1", model.Update{"type": "layout"})
	if aCalls != 1 {
		t.Errorf("A still receiving after unsubscribe: %d calls", aCalls)
	}
	if bCalls != 2 {
		t.Errorf("B stopped receiving after A unsubscribed: %d calls", bCalls)
	}

	offB()
	if s.subs.HasEvent("w1") {
		t.Error("workspace subscription entry should be deleted once empty")
	}
}

func TestSynchronizer_SubscriberFaultIsolation(t *testing.T) {
	s, fc, _ := newTestSynchronizer(t)
	if err := s.Connect(context.Background(), "w1", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var survived bool
	if _, err := s.OnUpdate(func(model.Update) { panic("bad subscriber") }); err != nil {
		t.Fatalf("OnUpdate failed: %v", err)
	}
	if _, err := s.OnUpdate(func(model.Update) { survived = true }); err != nil {
		t.Fatalf("OnUpdate failed: %v", err)
	}

	fc.inject(t, "w1", model.Update{"type": "layout"})
	if !survived {
		t.Error("subscriber after a panicking subscriber did not receive the update")
	}
}

func TestSynchronizer_PushUpdateEnvelope(t *testing.T) {
	s, fc, _ := newTestSynchronizer(t)

	update := model.Update{"type": "layout", "source": "editor", "columns": 3}
	if err := s.PushUpdate("w1", update); err != nil {
		t.Fatalf("PushUpdate failed: %v", err)
	}

	sent := fc.sentEnvelopes()
	if len(sent) != 1 {
		t.Fatalf("sent %d envelopes, want 1", len(sent))
	}
	env := sent[0]
	if env.Type != model.TypeUpdate {
		t.Errorf("envelope type = %q, want %q", env.Type, model.TypeUpdate)
	}
	if env.Timestamp == 0 {
		t.Error("envelope missing timestamp")
	}
	if len(env.MessageID) < 5 || env.MessageID[:4] != "msg-" {
		t.Errorf("messageId = %q, want msg- prefix", env.MessageID)
	}
	payload, ok := env.Payload.(model.UpdatePayload)
	if !ok {
		t.Fatalf("payload is %T, want UpdatePayload", env.Payload)
	}
	if payload.WorkspaceID != "w1" {
		t.Errorf("payload workspace = %q, want w1", payload.WorkspaceID)
	}
}

func TestSynchronizer_PushUpdateValidation(t *testing.T) {
	s, _, _ := newTestSynchronizer(t)

	if err := s.PushUpdate("", model.Update{}); !errors.Is(err, ErrEmptyID) {
		t.Errorf("expected ErrEmptyID, got %v", err)
	}
}

func TestSynchronizer_InboundRouting(t *testing.T) {
	s, fc, store := newTestSynchronizer(t)
	store.SetState("w1", map[string]any{"version": 1})
	if err := s.Connect(context.Background(), "w1", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var delivered []model.Update
	if _, err := s.OnUpdate(func(u model.Update) { delivered = append(delivered, u) }); err != nil {
		t.Fatalf("OnUpdate failed: %v", err)
	}

	var received []UpdateReceived
	s.On(EventUpdateReceived, func(p any) {
		if ur, ok := p.(UpdateReceived); ok {
			received = append(received, ur)
		}
	})

	fc.inject(t, "w1", model.Update{"type": "layout", "source": "server"})

	if len(delivered) != 1 {
		t.Fatalf("delivered %d updates, want 1", len(delivered))
	}
	if delivered[0].Type() != "layout" || delivered[0].Source() != "server" {
		t.Errorf("delivered update = %v", delivered[0])
	}
	if len(received) != 1 || received[0].WorkspaceID != "w1" {
		t.Errorf("update_received events = %v, want one for w1", received)
	}
}

func TestSynchronizer_StateFetchFailureStillDelivers(t *testing.T) {
	fc := newFakeConn()
	s := New(Config{EndpointURL: "wss://collab.test/sync"}, fc, failingStore{}, nil)
	if err := s.Connect(context.Background(), "w1", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var delivered int
	if _, err := s.OnUpdate(func(model.Update) { delivered++ }); err != nil {
		t.Fatalf("OnUpdate failed: %v", err)
	}

	fc.inject(t, "w1", model.Update{"type": "layout", "baseVersion": 1})
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1 (best-effort delivery on fetch failure)", delivered)
	}
}

type failingStore struct{}

func (failingStore) GetState(context.Context, string) (map[string]any, error) {
	return nil, errors.New("state database unavailable")
}

func TestSynchronizer_ConflictWithheldFromFanOut(t *testing.T) {
	s, fc, store := newTestSynchronizer(t)
	store.SetState("w1", map[string]any{"version": float64(5)})
	if err := s.Connect(context.Background(), "w1", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var delivered int
	if _, err := s.OnUpdate(func(model.Update) { delivered++ }); err != nil {
		t.Fatalf("OnUpdate failed: %v", err)
	}

	var conflicts []ConflictDetected
	s.On(EventConflictDetected, func(p any) {
		if cd, ok := p.(ConflictDetected); ok {
			conflicts = append(conflicts, cd)
		}
	})
	var received int
	s.On(EventUpdateReceived, func(any) { received++ })

	// Based on version 3, but canonical state is already at version 5
	fc.inject(t, "w1", model.Update{"type": "layout", "baseVersion": 3})

	if delivered != 0 {
		t.Errorf("conflicting update fanned out %d times, want 0", delivered)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflict_detected events = %d, want 1", len(conflicts))
	}
	if conflicts[0].WorkspaceID != "w1" {
		t.Errorf("conflict workspace = %q, want w1", conflicts[0].WorkspaceID)
	}
	if received != 1 {
		t.Errorf("update_received events = %d, want 1 regardless of conflict", received)
	}

	// An update based on the current version flows through
	fc.inject(t, "w1", model.Update{"type": "layout", "baseVersion": 5})
	if delivered != 1 {
		t.Errorf("non-conflicting update delivered %d times, want 1", delivered)
	}
}

func TestSynchronizer_SetConflictStrategy(t *testing.T) {
	s, _, _ := newTestSynchronizer(t)

	if got := s.ConflictStrategy(); got != LastWriteWins {
		t.Errorf("default strategy = %v, want last_write_wins", got)
	}

	if err := s.SetConflictStrategy(MergeStrategy); err != nil {
		t.Fatalf("SetConflictStrategy failed: %v", err)
	}
	if got := s.ConflictStrategy(); got != MergeStrategy {
		t.Errorf("strategy = %v, want merge", got)
	}

	if err := s.SetConflictStrategy(Strategy("newest_wins")); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestSynchronizer_ResolveConflictUsesActiveStrategy(t *testing.T) {
	s, _, _ := newTestSynchronizer(t)

	local := map[string]any{"a": 1, "b": 2}
	remote := map[string]any{"b": 3, "c": 4}

	res, err := s.ResolveConflict(nil, nil, local, remote)
	if err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}
	if res.Resolved["b"] != 3 {
		t.Errorf("last_write_wins b = %v, want 3", res.Resolved["b"])
	}

	if err := s.SetConflictStrategy(ManualStrategy); err != nil {
		t.Fatalf("SetConflictStrategy failed: %v", err)
	}
	if _, err := s.ResolveConflict(nil, nil, local, remote); !errors.Is(err, ErrManualResolution) {
		t.Errorf("expected ErrManualResolution, got %v", err)
	}
}

func TestSynchronizer_EventBridge(t *testing.T) {
	s, fc, _ := newTestSynchronizer(t)

	var connected, disconnected, stateChanges, failed int
	s.On(EventConnected, func(any) { connected++ })
	s.On(EventDisconnected, func(any) { disconnected++ })
	s.On(EventConnectionStateChange, func(any) { stateChanges++ })
	s.On(EventConnectionFailed, func(any) { failed++ })

	fc.emitter.Emit(connection.EventStateChange, connection.StateChange{
		From: connection.StateConnecting, To: connection.StateConnected,
	})
	fc.emitter.Emit(connection.EventStateChange, connection.StateChange{
		From: connection.StateConnected, To: connection.StateDisconnected,
	})
	fc.emitter.Emit(connection.EventMaxReconnectAttempts, 10)

	if connected != 1 {
		t.Errorf("connected events = %d, want 1", connected)
	}
	if disconnected != 1 {
		t.Errorf("disconnected events = %d, want 1", disconnected)
	}
	if stateChanges != 2 {
		t.Errorf("connection_state_change events = %d, want 2", stateChanges)
	}
	if failed != 1 {
		t.Errorf("connection_failed events = %d, want 1", failed)
	}
}

func TestSynchronizer_DisconnectKeepsSubscriptions(t *testing.T) {
	s, fc, _ := newTestSynchronizer(t)
	if err := s.Connect(context.Background(), "w1", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var delivered int
	if _, err := s.OnUpdate(func(model.Update) { delivered++ }); err != nil {
		t.Fatalf("OnUpdate failed: %v", err)
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := s.Connect(context.Background(), "w1", "u1"); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}

	fc.inject(t, "w1", model.Update{"type": "layout"})
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1 (subscriptions survive disconnect)", delivered)
	}
}
