package allocation

import (
	"fmt"
	"strings"
)

// Priority is the class a token is admitted under. Lower weight wins.
type Priority string

const (
	PriorityPaid      Priority = "paid"
	PriorityEmergency Priority = "emergency"
	PriorityFollowUp  Priority = "follow_up"
	PriorityOnline    Priority = "online"
	PriorityWalkIn    Priority = "walk_in"
)

var priorityWeights = map[Priority]int{
	PriorityPaid:      1,
	PriorityEmergency: 2,
	PriorityFollowUp:  3,
	PriorityOnline:    4,
	PriorityWalkIn:    5,
}

// EmergencyWeight is the weight an emergency token competes with during preemption.
var EmergencyWeight = priorityWeights[PriorityEmergency]

// Priorities lists every class from highest to lowest priority.
func Priorities() []Priority {
	return []Priority{PriorityPaid, PriorityEmergency, PriorityFollowUp, PriorityOnline, PriorityWalkIn}
}

// ParsePriority accepts a class name in any letter case.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

func (p Priority) Valid() bool {
	_, ok := priorityWeights[p]
	return ok
}

// Weight returns the ordering weight of p. Unknown classes sort last, as walk-ins.
func (p Priority) Weight() int {
	if w, ok := priorityWeights[p]; ok {
		return w
	}
	return priorityWeights[PriorityWalkIn]
}

func (p Priority) String() string {
	return string(p)
}
