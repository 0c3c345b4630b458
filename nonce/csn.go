package nonce

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
)

// CombinedSequence is our outgoing counter on one link.
type CombinedSequence struct {
	value uint64
}

// NewCombinedSequence starts with overflow 0 and a cryptographically random
// 32-bit sequence number rather than a random 48-bit value. The SaltyRTC
// wire protocol requires the first overflow number to be 0, which also
// leaves the full 16 bits of headroom.
func NewCombinedSequence() (*CombinedSequence, error) {
	var b [8]byte
	if _, err := rand.Read(b[4:]); err != nil {
		return nil, fmt.Errorf("generate combined sequence number: %w", err)
	}
	return &CombinedSequence{value: binary.BigEndian.Uint64(b[:])}, nil
}

// NewCombinedSequenceFrom starts at a given value.
func NewCombinedSequenceFrom(value uint64) (*CombinedSequence, error) {
	if value > MaxCombinedSequence {
		return nil, fmt.Errorf("%w: combined sequence number %d exceeds 48 bits", protocol.ErrArgument, value)
	}
	return &CombinedSequence{value: value}, nil
}

// Value returns the current counter value.
func (cs *CombinedSequence) Value() uint64 {
	return cs.value
}

// Overflow returns the high 16 bits of the current value.
func (cs *CombinedSequence) Overflow() uint16 {
	return uint16(cs.value >> 32)
}

// Sequence returns the low 32 bits of the current value.
func (cs *CombinedSequence) Sequence() uint32 {
	return uint32(cs.value)
}

// Next increments the counter by one and returns the new value. It fails
// with protocol.ErrOverflow instead of wrapping; the counter is unchanged
// in that case.
func (cs *CombinedSequence) Next() (uint64, error) {
	if cs.value >= MaxCombinedSequence {
		return 0, fmt.Errorf("%w: cannot increment past 2**48-1", protocol.ErrOverflow)
	}
	cs.value++
	return cs.value, nil
}

// CombinedSequencePair tracks both directions of one peer link. It is not
// safe for concurrent use; the owner serializes access.
type CombinedSequencePair struct {
	ours      *CombinedSequence
	theirs    uint64
	hasTheirs bool
}

// NewCombinedSequencePair starts ours at a random value with theirs unset.
func NewCombinedSequencePair() (*CombinedSequencePair, error) {
	ours, err := NewCombinedSequence()
	if err != nil {
		return nil, err
	}
	return &CombinedSequencePair{ours: ours}, nil
}

// NewCombinedSequencePairFrom wraps an existing outgoing counter.
func NewCombinedSequencePairFrom(ours *CombinedSequence) *CombinedSequencePair {
	return &CombinedSequencePair{ours: ours}
}

// Ours returns the outgoing counter.
func (p *CombinedSequencePair) Ours() *CombinedSequence {
	return p.ours
}

// HasTheirs reports whether a message from the peer was accepted yet.
func (p *CombinedSequencePair) HasTheirs() bool {
	return p.hasTheirs
}

// Theirs returns the last accepted peer CSN.
func (p *CombinedSequencePair) Theirs() (uint64, bool) {
	return p.theirs, p.hasTheirs
}

// CheckTheirs validates a received CSN without storing it. The first value
// of any magnitude is accepted; afterwards values must strictly increase.
// Gaps are allowed.
func (p *CombinedSequencePair) CheckTheirs(csn uint64) error {
	if csn > MaxCombinedSequence {
		return fmt.Errorf("%w: combined sequence number %d exceeds 48 bits", protocol.ErrValidation, csn)
	}
	if p.hasTheirs && csn <= p.theirs {
		return fmt.Errorf("%w: combined sequence number %d is not greater than %d", protocol.ErrValidation, csn, p.theirs)
	}
	return nil
}

// UpdateTheirs validates and stores a received CSN. On error the stored
// value is left untouched.
func (p *CombinedSequencePair) UpdateTheirs(csn uint64) error {
	if err := p.CheckTheirs(csn); err != nil {
		return err
	}
	p.theirs = csn
	p.hasTheirs = true
	return nil
}
