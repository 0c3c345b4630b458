package nonce

import (
	"testing"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinedSequenceRandomStart(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 16; i++ {
		cs, err := NewCombinedSequence()
		require.NoError(t, err)
		assert.Zero(t, cs.Overflow())
		seen[cs.Value()] = true
	}
	assert.Greater(t, len(seen), 1, "start values should be random")
}

func TestCombinedSequenceIncrements(t *testing.T) {
	cs, err := NewCombinedSequenceFrom(1<<32 - 3)
	require.NoError(t, err)

	prev := cs.Value()
	for i := 0; i < 100; i++ {
		next, err := cs.Next()
		require.NoError(t, err)
		assert.Equal(t, prev+1, next)
		prev = next
	}

	// Carry from sequence into overflow.
	assert.Equal(t, uint16(1), cs.Overflow())
	assert.Equal(t, uint32(97), cs.Sequence())
}

func TestCombinedSequenceOverflow(t *testing.T) {
	cs, err := NewCombinedSequenceFrom(MaxCombinedSequence - 2)
	require.NoError(t, err)

	v, err := cs.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(MaxCombinedSequence-1), v)

	v, err = cs.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(MaxCombinedSequence), v)

	_, err = cs.Next()
	assert.ErrorIs(t, err, protocol.ErrOverflow)
	assert.Equal(t, uint64(MaxCombinedSequence), cs.Value(), "counter must not wrap")

	_, err = NewCombinedSequenceFrom(MaxCombinedSequence + 1)
	assert.ErrorIs(t, err, protocol.ErrArgument)
}

func TestCombinedSequencePairTheirs(t *testing.T) {
	p, err := NewCombinedSequencePair()
	require.NoError(t, err)
	assert.False(t, p.HasTheirs())

	// First value of any magnitude is accepted.
	require.NoError(t, p.UpdateTheirs(1<<40))
	theirs, ok := p.Theirs()
	assert.True(t, ok)
	assert.Equal(t, uint64(1<<40), theirs)

	// Equal and smaller values are rejected without changing state.
	assert.ErrorIs(t, p.UpdateTheirs(1<<40), protocol.ErrValidation)
	assert.ErrorIs(t, p.UpdateTheirs(7), protocol.ErrValidation)
	theirs, _ = p.Theirs()
	assert.Equal(t, uint64(1<<40), theirs)

	// Greater values, gaps included, replace the stored value.
	require.NoError(t, p.UpdateTheirs(1<<40+5))
	theirs, _ = p.Theirs()
	assert.Equal(t, uint64(1<<40+5), theirs)
}

func TestCombinedSequencePairCheckDoesNotStore(t *testing.T) {
	p, err := NewCombinedSequencePair()
	require.NoError(t, err)

	require.NoError(t, p.CheckTheirs(10))
	assert.False(t, p.HasTheirs())

	require.NoError(t, p.UpdateTheirs(10))
	assert.ErrorIs(t, p.CheckTheirs(10), protocol.ErrValidation)
	assert.NoError(t, p.CheckTheirs(11))
	theirs, _ := p.Theirs()
	assert.Equal(t, uint64(10), theirs)
}

func TestCombinedSequencePairOurs(t *testing.T) {
	ours, err := NewCombinedSequenceFrom(41)
	require.NoError(t, err)
	p := NewCombinedSequencePairFrom(ours)

	for want := uint64(42); want < 52; want++ {
		got, err := p.Ours().Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
