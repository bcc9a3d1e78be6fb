package syncer

import (
	"errors"
	"time"

	"github.com/collabhq/workspace-sync/internal/model"
)

// Errors surfaced for caller misuse. Transient transport conditions are
// absorbed by the connection layer and never appear here.
var (
	ErrNoWorkspace = errors.New("no active workspace: connect first")
	ErrEmptyID     = errors.New("workspace and user IDs required")
)

// Event names emitted by a Synchronizer.
const (
	EventConnected             = "connected"
	EventDisconnected          = "disconnected"
	EventConnectionStateChange = "connection_state_change"
	EventConnectionFailed      = "connection_failed"
	EventUpdateReceived        = "update_received"
	EventConflictDetected      = "conflict_detected"
)

// UpdateReceived is the payload of an update_received event. It fires for
// every routed inbound update, conflicting or not.
type UpdateReceived struct {
	WorkspaceID string
	Update      model.Update
}

// ConflictDetected is the payload of a conflict_detected event. The update
// was withheld from fan-out; the caller resolves via ResolveConflict.
type ConflictDetected struct {
	WorkspaceID string
	Update      model.Update
	State       map[string]any
}

// Config tunes a Synchronizer and its underlying connection. Zero tuning
// fields fall back to the connection package defaults.
type Config struct {
	EndpointURL          string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
}
