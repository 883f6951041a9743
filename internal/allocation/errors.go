package allocation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidPriority = errors.New("invalid priority level")
	ErrInvalidStatus   = errors.New("invalid token status")
	ErrInvalidSlot     = errors.New("invalid slot")
	ErrInvalidTime     = errors.New("invalid time label")
)

// Entity-specific errors. They match ErrNotFound or ErrConflict under errors.Is.
var (
	ErrSlotNotFound   = fmt.Errorf("slot %w", ErrNotFound)
	ErrTokenNotFound  = fmt.Errorf("token %w", ErrNotFound)
	ErrSlotExists     = fmt.Errorf("slot already registered: %w", ErrConflict)
	ErrDuplicateToken = fmt.Errorf("token already booked: %w", ErrConflict)
)

// Messages surfaced to API clients, kept identical across transports.
const (
	MsgSlotNotFound      = "Slot not found"
	MsgTokenNotFound     = "Token not found"
	MsgDuplicateBooking  = "Duplicate booking not allowed"
	MsgSlotExists        = "Slot already exists"
	MsgSlotFull          = "Slot is full, added to waiting list"
	MsgBooked            = "Token booked successfully"
	MsgCancelledPromoted = "Token cancelled and waiting list updated"
	MsgCancelledWaiting  = "Token cancelled from waiting list"
	MsgEmergencyInserted = "Emergency token inserted"
)
