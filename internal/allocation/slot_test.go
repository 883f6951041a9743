package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlot_Validation(t *testing.T) {
	_, err := NewSlot("s", "", "9:00", "10:00", 1)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = NewSlot("s", "D", "9:00", "10:00", 0)
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = NewSlot("s", "D", "9am", "10:00", 1)
	assert.ErrorIs(t, err, ErrInvalidTime)

	s, err := NewSlot("", "D", "9:00", "10:00", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())

	info := s.Info()
	assert.Equal(t, 3, info.AvailableCapacity)
	assert.Zero(t, info.TokensCount)
	assert.False(t, info.CreatedAt.IsZero())
}

func TestEnqueueWaiting_StableWithinWeight(t *testing.T) {
	s, err := NewSlot("s", "D", "9:00", "10:00", 1)
	require.NoError(t, err)

	order := []struct {
		id  string
		p   Priority
		pos int
	}{
		{"w1", PriorityWalkIn, 1},
		{"o1", PriorityOnline, 1},
		{"o2", PriorityOnline, 2},
		{"p1", PriorityPaid, 1},
		{"w2", PriorityWalkIn, 5},
		{"f1", PriorityFollowUp, 2},
	}
	for _, o := range order {
		tok := mustToken(t, o.id, o.p)
		assert.Equal(t, o.pos, s.enqueueWaiting(tok), o.id)
	}

	got := make([]string, len(s.waiting))
	for i, tok := range s.waiting {
		got[i] = tok.ID
	}
	assert.Equal(t, []string{"p1", "f1", "o1", "o2", "w1", "w2"}, got)
}

func TestPreemptionCandidate_FirstAtMaxWeight(t *testing.T) {
	s, err := NewSlot("s", "D", "9:00", "10:00", 5)
	require.NoError(t, err)

	c, w := s.preemptionCandidate()
	assert.Nil(t, c)
	assert.Zero(t, w)

	for _, tok := range []*Token{
		mustToken(t, "a", PriorityOnline),
		mustToken(t, "b", PriorityWalkIn),
		mustToken(t, "c", PriorityPaid),
		mustToken(t, "d", PriorityFollowUp),
		mustToken(t, "e", PriorityWalkIn),
	} {
		s.admit(tok)
	}

	c, w = s.preemptionCandidate()
	require.NotNil(t, c)
	assert.Equal(t, "b", c.ID)
	assert.Equal(t, 5, w)
}

func TestRemovePreservesOrder(t *testing.T) {
	s, err := NewSlot("s", "D", "9:00", "10:00", 5)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		s.admit(mustToken(t, id, PriorityOnline))
	}

	removed, ok := s.removeAdmitted("b")
	require.True(t, ok)
	assert.Equal(t, "b", removed.ID)
	assert.Equal(t, "a", s.admitted[0].ID)
	assert.Equal(t, "c", s.admitted[1].ID)

	_, ok = s.removeAdmitted("b")
	assert.False(t, ok)
	assert.False(t, s.contains("b"))
	assert.True(t, s.contains("c"))
}
