package allocation

import (
	"fmt"
	"slices"
	"sync"
)

// Engine owns every slot by id and applies the admission rules. Operations on
// one slot are serialized by that slot's lock; different slots proceed in
// parallel.
type Engine struct {
	mu    sync.RWMutex
	slots map[string]*Slot
	order []string

	// token id -> slot id; only touched while holding a slot lock (slot -> index)
	idxMu  sync.Mutex
	tokens map[string]string
}

func NewEngine() *Engine {
	return &Engine{
		slots:  make(map[string]*Slot),
		tokens: make(map[string]string),
	}
}

type BookResult struct {
	Accepted bool
	Message  string
	// 1-based waiting list position when not accepted
	Position int
	Token    Token
}

type CancelResult struct {
	Message         string
	Cancelled       Token
	FromWaitingList bool
	Promoted        *Token
}

type EmergencyResult struct {
	Accepted  bool
	Message   string
	Token     Token
	Preempted *Token
	// admitted set is above capacity after this insertion
	Overflow bool
}

type DelayResult struct {
	Message      string
	DelayMinutes int
	PrevEndTime  string
	NewEndTime   string
}

// SlotStatus is a read-only snapshot of one slot.
type SlotStatus struct {
	SlotID            string  `json:"slotId"`
	DoctorID          string  `json:"doctorId"`
	StartTime         string  `json:"startTime"`
	EndTime           string  `json:"endTime"`
	Capacity          int     `json:"capacity"`
	Tokens            []Token `json:"tokens"`
	WaitingList       []Token `json:"waitingList"`
	AvailableCapacity int     `json:"availableCapacity"`
}

// SlotUpdate carries optional changes; nil fields are left alone.
type SlotUpdate struct {
	StartTime *string
	EndTime   *string
	Capacity  *int
}

// TokenLocation describes where a token currently lives.
type TokenLocation struct {
	Token Token
	Slot  SlotInfo
	// 1-based; 0 when the token is admitted
	WaitingListPosition int
}

// AddSlot registers a provisioned slot.
func (e *Engine) AddSlot(s *Slot) error {
	if s == nil {
		return fmt.Errorf("%w: nil slot", ErrInvalidSlot)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.slots[s.id]; exists {
		return fmt.Errorf("%w: %s", ErrSlotExists, s.id)
	}
	e.slots[s.id] = s
	e.order = append(e.order, s.id)
	return nil
}

func (e *Engine) GetSlot(slotID string) (*Slot, error) {
	e.mu.RLock()
	s, ok := e.slots[slotID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	return s, nil
}

// AllSlots returns slots in registration order.
func (e *Engine) AllSlots() []*Slot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Slot, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.slots[id])
	}
	return out
}

func (e *Engine) SlotsByDoctor(doctorID string) []*Slot {
	var out []*Slot
	for _, s := range e.AllSlots() {
		if s.doctorID == doctorID {
			out = append(out, s)
		}
	}
	return out
}

// Book admits t when the slot has room and queues it by priority otherwise.
func (e *Engine) Book(slotID string, t *Token) (BookResult, error) {
	s, err := e.GetSlot(slotID)
	if err != nil {
		return BookResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.claim(s, t.ID); err != nil {
		return BookResult{}, err
	}

	if s.hasCapacity() {
		s.admit(t)
		return BookResult{Accepted: true, Message: MsgBooked, Token: *t}, nil
	}

	pos := s.enqueueWaiting(t)
	return BookResult{Accepted: false, Message: MsgSlotFull, Position: pos, Token: *t}, nil
}

// Cancel removes a token. Freeing an admitted place promotes at most one
// waiting token, the current head.
func (e *Engine) Cancel(slotID, tokenID string) (CancelResult, error) {
	s, err := e.GetSlot(slotID)
	if err != nil {
		return CancelResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if removed, ok := s.removeAdmitted(tokenID); ok {
		e.release(tokenID)
		removed.UpdateStatus(StatusCancelled)
		res := CancelResult{Message: MsgCancelledPromoted, Cancelled: *removed}
		if next, ok := s.dequeueWaiting(); ok {
			s.admit(next)
			promoted := *next
			res.Promoted = &promoted
		}
		return res, nil
	}

	if removed, ok := s.removeWaiting(tokenID); ok {
		e.release(tokenID)
		removed.UpdateStatus(StatusCancelled)
		return CancelResult{Message: MsgCancelledWaiting, Cancelled: *removed, FromWaitingList: true}, nil
	}

	return CancelResult{}, fmt.Errorf("%w: %s in slot %s", ErrTokenNotFound, tokenID, slotID)
}

// InsertEmergency admits t as an emergency token. When the slot is full the
// first admitted token holding the highest weight is moved to the waiting list,
// provided it ranks below emergency. The emergency token is admitted either way,
// so a slot full of paid tokens ends one above capacity.
func (e *Engine) InsertEmergency(slotID string, t *Token) (EmergencyResult, error) {
	s, err := e.GetSlot(slotID)
	if err != nil {
		return EmergencyResult{}, err
	}

	t.Priority = PriorityEmergency

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := e.claim(s, t.ID); err != nil {
		return EmergencyResult{}, err
	}

	res := EmergencyResult{Accepted: true, Message: MsgEmergencyInserted}
	if !s.hasCapacity() {
		candidate, weight := s.preemptionCandidate()
		if candidate != nil && weight > EmergencyWeight {
			s.removeAdmitted(candidate.ID)
			s.enqueueWaiting(candidate)
			preempted := *candidate
			res.Preempted = &preempted
		}
	}

	s.admit(t)
	res.Token = *t
	res.Overflow = len(s.admitted) > s.capacity
	return res, nil
}

// SlotStatus snapshots a slot with admitted tokens ordered by weight. The sort
// is stable so equal weights keep admission order.
func (e *Engine) SlotStatus(slotID string) (SlotStatus, error) {
	s, err := e.GetSlot(slotID)
	if err != nil {
		return SlotStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := copyTokens(s.admitted)
	slices.SortStableFunc(tokens, func(a, b Token) int {
		return a.Weight() - b.Weight()
	})

	return SlotStatus{
		SlotID:            s.id,
		DoctorID:          s.doctorID,
		StartTime:         s.startTime,
		EndTime:           s.endTime,
		Capacity:          s.capacity,
		Tokens:            tokens,
		WaitingList:       copyTokens(s.waiting),
		AvailableCapacity: s.capacity - len(s.admitted),
	}, nil
}

// ExtendSlotEnd pushes the end label back by delayMinutes, wrapping past midnight.
func (e *Engine) ExtendSlotEnd(slotID string, delayMinutes int) (DelayResult, error) {
	s, err := e.GetSlot(slotID)
	if err != nil {
		return DelayResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newEnd, err := AddMinutes(s.endTime, delayMinutes)
	if err != nil {
		return DelayResult{}, fmt.Errorf("slot %s end time: %w", slotID, err)
	}

	prev := s.endTime
	s.endTime = newEnd
	return DelayResult{
		Message:      fmt.Sprintf("Slot timing extended by %d minutes", delayMinutes),
		DelayMinutes: delayMinutes,
		PrevEndTime:  prev,
		NewEndTime:   newEnd,
	}, nil
}

// UpdateSlot changes the window or capacity. Raising capacity does not pull
// tokens off the waiting list.
func (e *Engine) UpdateSlot(slotID string, upd SlotUpdate) (SlotInfo, error) {
	s, err := e.GetSlot(slotID)
	if err != nil {
		return SlotInfo{}, err
	}

	if upd.StartTime != nil {
		if _, err := parseClock(*upd.StartTime); err != nil {
			return SlotInfo{}, fmt.Errorf("start time: %w", err)
		}
	}
	if upd.EndTime != nil {
		if _, err := parseClock(*upd.EndTime); err != nil {
			return SlotInfo{}, fmt.Errorf("end time: %w", err)
		}
	}
	if upd.Capacity != nil && *upd.Capacity < 1 {
		return SlotInfo{}, fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidSlot, *upd.Capacity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if upd.StartTime != nil {
		s.startTime = *upd.StartTime
	}
	if upd.EndTime != nil {
		s.endTime = *upd.EndTime
	}
	if upd.Capacity != nil {
		s.capacity = *upd.Capacity
	}
	return s.info(), nil
}

// FindToken locates a token in any slot.
func (e *Engine) FindToken(tokenID string) (TokenLocation, error) {
	var loc TokenLocation
	err := e.withToken(tokenID, func(s *Slot, t *Token, pos int) {
		loc = TokenLocation{Token: *t, Slot: s.info(), WaitingListPosition: pos}
	})
	return loc, err
}

// UpdateTokenStatus overwrites the status of an admitted or waiting token.
func (e *Engine) UpdateTokenStatus(tokenID string, status TokenStatus) (TokenLocation, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return TokenLocation{}, err
	}
	var loc TokenLocation
	err := e.withToken(tokenID, func(s *Slot, t *Token, pos int) {
		t.UpdateStatus(status)
		loc = TokenLocation{Token: *t, Slot: s.info(), WaitingListPosition: pos}
	})
	return loc, err
}

func (e *Engine) withToken(tokenID string, fn func(s *Slot, t *Token, pos int)) error {
	e.idxMu.Lock()
	slotID, ok := e.tokens[tokenID]
	e.idxMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}

	s, err := e.GetSlot(slotID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// the token may have been cancelled between the index read and the lock
	if t := s.findAdmitted(tokenID); t != nil {
		fn(s, t, 0)
		return nil
	}
	if t, pos := s.findWaiting(tokenID); t != nil {
		fn(s, t, pos)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
}

// claim reserves tokenID for s. Caller holds s.mu.
func (e *Engine) claim(s *Slot, tokenID string) error {
	if s.contains(tokenID) {
		return fmt.Errorf("%w: %s in slot %s", ErrDuplicateToken, tokenID, s.id)
	}

	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	if other, ok := e.tokens[tokenID]; ok {
		return fmt.Errorf("%w: %s held by slot %s", ErrDuplicateToken, tokenID, other)
	}
	e.tokens[tokenID] = s.id
	return nil
}

func (e *Engine) release(tokenID string) {
	e.idxMu.Lock()
	delete(e.tokens, tokenID)
	e.idxMu.Unlock()
}
