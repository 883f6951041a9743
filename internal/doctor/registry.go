package doctor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("doctor not found")
	ErrConflict    = errors.New("doctor already exists")
	ErrInvalidName = errors.New("invalid doctor name")
)

const (
	minNameLen = 2
	maxNameLen = 100
)

type Doctor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	SlotIDs   []string  `json:"slotIds"`
}

// Registry keeps doctors in memory in creation order.
type Registry struct {
	mu      sync.RWMutex
	doctors map[string]*Doctor
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{doctors: make(map[string]*Doctor)}
}

func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < minNameLen || n > maxNameLen {
		return fmt.Errorf("%w: must be %d-%d characters", ErrInvalidName, minNameLen, maxNameLen)
	}
	return nil
}

func (r *Registry) Create(id, name string) (Doctor, error) {
	if err := ValidateName(name); err != nil {
		return Doctor{}, err
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doctors[id]; ok {
		return Doctor{}, fmt.Errorf("doctor %s: %w", id, ErrConflict)
	}
	now := time.Now()
	d := &Doctor{ID: id, Name: strings.TrimSpace(name), CreatedAt: now, UpdatedAt: now}
	r.doctors[id] = d
	r.order = append(r.order, id)
	return d.clone(), nil
}

func (r *Registry) List() []Doctor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Doctor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.doctors[id].clone())
	}
	return out
}

func (r *Registry) Get(id string) (Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return Doctor{}, fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	return d.clone(), nil
}

func (r *Registry) Rename(id, name string) (Doctor, error) {
	if err := ValidateName(name); err != nil {
		return Doctor{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return Doctor{}, fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	d.Name = strings.TrimSpace(name)
	d.UpdatedAt = time.Now()
	return d.clone(), nil
}

// Delete forgets the doctor. Slots already provisioned for it stay in the engine.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[id]; !ok {
		return fmt.Errorf("doctor %s: %w", id, ErrNotFound)
	}
	delete(r.doctors, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) AttachSlot(doctorID, slotID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return fmt.Errorf("doctor %s: %w", doctorID, ErrNotFound)
	}
	d.SlotIDs = append(d.SlotIDs, slotID)
	d.UpdatedAt = time.Now()
	return nil
}

func (r *Registry) SlotIDs(doctorID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[doctorID]
	if !ok {
		return nil, fmt.Errorf("doctor %s: %w", doctorID, ErrNotFound)
	}
	out := make([]string, len(d.SlotIDs))
	copy(out, d.SlotIDs)
	return out, nil
}

func (d *Doctor) clone() Doctor {
	c := *d
	c.SlotIDs = append([]string(nil), d.SlotIDs...)
	return c
}
