package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope message types.
const (
	TypeUpdate    = "sdui_update"
	TypeHeartbeat = "heartbeat"
)

// Envelope wraps all outbound transport traffic.
//
// MessageID is unique per envelope instance (idempotency and debugging only;
// the core does not deduplicate on it). An envelope is immutable once sent.
type Envelope struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
	MessageID string `json:"messageId"`
}

// NewEnvelope creates an envelope stamped with the current time and a fresh
// message ID.
func NewEnvelope(msgType string, payload any) Envelope {
	return Envelope{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		MessageID: "msg-" + uuid.NewString(),
	}
}

// Inbound is a parsed inbound envelope. The payload stays raw so consumers
// can decode into their own types.
type Inbound struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"messageId"`

	// ReceivedAt is the local timestamp when the transport delivered the
	// message, not part of the wire format.
	ReceivedAt time.Time `json:"-"`
}

// HeartbeatPayload is the payload of a heartbeat envelope. Heartbeats keep
// idle connections alive through intermediaries and carry no application
// semantics.
type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// UpdatePayload is the payload of an sdui_update envelope.
type UpdatePayload struct {
	WorkspaceID string `json:"workspaceId"`
	Update      Update `json:"update"`
}

// Update is an opaque application-defined payload of shape
// {type, source, ...data}. The core reads only "type" and "source", for
// logging and routing.
type Update map[string]any

// Type returns the update's "type" field, or "" when absent.
func (u Update) Type() string {
	s, _ := u["type"].(string)
	return s
}

// Source returns the update's "source" field, or "" when absent.
func (u Update) Source() string {
	s, _ := u["source"].(string)
	return s
}

// BaseVersion returns the update's "baseVersion" field and whether it was
// present as a number. JSON numbers decode as float64.
func (u Update) BaseVersion() (int64, bool) {
	switch v := u["baseVersion"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
