package allocation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TokenStatus string

const (
	StatusBooked    TokenStatus = "booked"
	StatusCancelled TokenStatus = "cancelled"
	StatusCompleted TokenStatus = "completed"
	StatusNoShow    TokenStatus = "no_show"
)

// ParseStatus validates a lifecycle status name.
func ParseStatus(s string) (TokenStatus, error) {
	st := TokenStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusBooked, StatusCancelled, StatusCompleted, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Token is one admission request. A Token value is a snapshot; the engine owns
// the live pointer and only mutates it under the owning slot's lock.
type Token struct {
	ID        string      `json:"id"`
	PatientID string      `json:"patientId"`
	Priority  Priority    `json:"priority"`
	Status    TokenStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewToken builds a booked token, generating an id when none is given.
func NewToken(id, patientID string, priority Priority) (*Token, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, string(priority))
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Token{
		ID:        id,
		PatientID: patientID,
		Priority:  priority,
		Status:    StatusBooked,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateStatus overwrites the status. Transitions are not restricted: any
// status may follow any other.
func (t *Token) UpdateStatus(status TokenStatus) {
	t.Status = status
	t.UpdatedAt = time.Now()
}

func (t *Token) Weight() int {
	return t.Priority.Weight()
}
