package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	SlotCreated        = "SLOT_CREATED"
	SlotUpdated        = "SLOT_UPDATED"
	SlotDelayed        = "SLOT_DELAYED"
	TokenBooked        = "TOKEN_BOOKED"
	TokenQueued        = "TOKEN_QUEUED"
	TokenCancelled     = "TOKEN_CANCELLED"
	TokenPromoted      = "TOKEN_PROMOTED"
	TokenPreempted     = "TOKEN_PREEMPTED"
	EmergencyInserted  = "EMERGENCY_INSERTED"
	TokenStatusUpdated = "TOKEN_STATUS_UPDATED"
)

// ErrUnavailable is returned by a Store that has no backing storage configured.
var ErrUnavailable = errors.New("event storage not configured")

// EventLog is one entry of the audit trail. ID is assigned by storage;
// EventID is generated when the event is recorded and travels with every sink.
type EventLog struct {
	ID        int64           `json:"id,omitempty"`
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	SlotID    string          `json:"slotId"`
	TokenID   *string         `json:"tokenId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Sink receives recorded events. Failures are logged by the caller, never retried.
type Sink interface {
	Name() string
	Record(ctx context.Context, ev EventLog) error
}

// Store reads back events for one slot, newest first.
type Store interface {
	ListBySlot(ctx context.Context, slotID string, limit int) ([]EventLog, error)
}
