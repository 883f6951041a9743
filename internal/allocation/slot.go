package allocation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Slot is a capacity-bounded admission window for one doctor. The admitted set
// keeps insertion order; the waiting list is ordered by priority weight with
// arrival order preserved among equal weights.
//
// The lowercase methods are not synchronized. The engine calls them with mu held.
type Slot struct {
	mu sync.Mutex

	id        string
	doctorID  string
	startTime string
	endTime   string
	capacity  int
	createdAt time.Time

	admitted []*Token
	waiting  []*Token
}

// SlotInfo is a point-in-time copy of a slot's descriptive fields and counts.
type SlotInfo struct {
	ID                string    `json:"id"`
	DoctorID          string    `json:"doctorId"`
	StartTime         string    `json:"startTime"`
	EndTime           string    `json:"endTime"`
	Capacity          int       `json:"capacity"`
	CreatedAt         time.Time `json:"createdAt"`
	TokensCount       int       `json:"tokensCount"`
	WaitingListCount  int       `json:"waitingListCount"`
	AvailableCapacity int       `json:"availableCapacity"`
}

// NewSlot validates the window and capacity. An empty id is replaced by a uuid.
func NewSlot(id, doctorID, startTime, endTime string, capacity int) (*Slot, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, fmt.Errorf("%w: doctor id is required", ErrInvalidSlot)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidSlot, capacity)
	}
	if _, err := parseClock(startTime); err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}
	if _, err := parseClock(endTime); err != nil {
		return nil, fmt.Errorf("end time: %w", err)
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return &Slot{
		id:        id,
		doctorID:  doctorID,
		startTime: startTime,
		endTime:   endTime,
		capacity:  capacity,
		createdAt: time.Now(),
	}, nil
}

// ID and DoctorID never change after construction.
func (s *Slot) ID() string       { return s.id }
func (s *Slot) DoctorID() string { return s.doctorID }

func (s *Slot) StartTime() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

func (s *Slot) EndTime() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

func (s *Slot) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

func (s *Slot) Info() SlotInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info()
}

func (s *Slot) info() SlotInfo {
	return SlotInfo{
		ID:                s.id,
		DoctorID:          s.doctorID,
		StartTime:         s.startTime,
		EndTime:           s.endTime,
		Capacity:          s.capacity,
		CreatedAt:         s.createdAt,
		TokensCount:       len(s.admitted),
		WaitingListCount:  len(s.waiting),
		AvailableCapacity: s.capacity - len(s.admitted),
	}
}

func (s *Slot) hasCapacity() bool {
	return len(s.admitted) < s.capacity
}

// admit does not check capacity or duplicates.
func (s *Slot) admit(t *Token) {
	s.admitted = append(s.admitted, t)
}

// enqueueWaiting inserts t ahead of the first entry with a strictly greater
// weight and returns its 1-based position.
func (s *Slot) enqueueWaiting(t *Token) int {
	w := t.Weight()
	idx := len(s.waiting)
	for i, other := range s.waiting {
		if w < other.Weight() {
			idx = i
			break
		}
	}
	s.waiting = append(s.waiting, nil)
	copy(s.waiting[idx+1:], s.waiting[idx:])
	s.waiting[idx] = t
	return idx + 1
}

func (s *Slot) dequeueWaiting() (*Token, bool) {
	if len(s.waiting) == 0 {
		return nil, false
	}
	head := s.waiting[0]
	s.waiting[0] = nil
	s.waiting = s.waiting[1:]
	return head, true
}

func (s *Slot) removeWaiting(tokenID string) (*Token, bool) {
	t, pos := s.findWaiting(tokenID)
	if t == nil {
		return nil, false
	}
	s.waiting = append(s.waiting[:pos-1], s.waiting[pos:]...)
	return t, true
}

func (s *Slot) removeAdmitted(tokenID string) (*Token, bool) {
	for i, t := range s.admitted {
		if t.ID == tokenID {
			s.admitted = append(s.admitted[:i], s.admitted[i+1:]...)
			return t, true
		}
	}
	return nil, false
}

func (s *Slot) findAdmitted(tokenID string) *Token {
	for _, t := range s.admitted {
		if t.ID == tokenID {
			return t
		}
	}
	return nil
}

// findWaiting returns the token and its 1-based position, or (nil, 0).
func (s *Slot) findWaiting(tokenID string) (*Token, int) {
	for i, t := range s.waiting {
		if t.ID == tokenID {
			return t, i + 1
		}
	}
	return nil, 0
}

func (s *Slot) contains(tokenID string) bool {
	if s.findAdmitted(tokenID) != nil {
		return true
	}
	t, _ := s.findWaiting(tokenID)
	return t != nil
}

// preemptionCandidate scans the admitted set in insertion order and returns the
// first token that reached the highest weight. Later tokens with an equal
// weight do not displace it.
func (s *Slot) preemptionCandidate() (*Token, int) {
	var candidate *Token
	maxWeight := 0
	for _, t := range s.admitted {
		if w := t.Weight(); w > maxWeight {
			maxWeight = w
			candidate = t
		}
	}
	return candidate, maxWeight
}

func copyTokens(src []*Token) []Token {
	out := make([]Token, len(src))
	for i, t := range src {
		out[i] = *t
	}
	return out
}
