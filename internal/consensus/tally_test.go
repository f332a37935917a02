package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTally_ResolvesOnce(t *testing.T) {
	tally := NewTally(3)

	_, reached := tally.Add(1, Zero)
	assert.False(t, reached)
	_, reached = tally.Add(1, One)
	assert.False(t, reached)

	counts, reached := tally.Add(1, Undecided)
	assert.True(t, reached)
	assert.Equal(t, Counts{Zero: 1, One: 1, Undecided: 1}, counts)
	assert.True(t, tally.Resolved(1))

	counts, reached = tally.Add(1, One)
	assert.False(t, reached)
	assert.Equal(t, 4, counts.Total())
}

func TestTally_RoundsAreIndependent(t *testing.T) {
	tally := NewTally(2)

	tally.Add(2, One)
	tally.Add(1, Zero)
	_, reached := tally.Add(2, One)

	assert.True(t, reached)
	assert.False(t, tally.Resolved(1))
	assert.Equal(t, Counts{Zero: 1}, tally.Counts(1))
	assert.Equal(t, []Value{One, One}, tally.Values(2))
	assert.Nil(t, tally.Values(9))
	assert.Equal(t, 2, tally.Len())
}

func TestTally_ValuesIsACopy(t *testing.T) {
	tally := NewTally(5)
	tally.Add(1, Zero)

	values := tally.Values(1)
	values[0] = One

	assert.Equal(t, []Value{Zero}, tally.Values(1))
}
