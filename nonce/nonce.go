package nonce

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
)

const (
	// MaxOverflow is the largest overflow number.
	MaxOverflow = 1<<16 - 1
	// MaxSequence is the largest sequence number.
	MaxSequence = 1<<32 - 1
	// MaxCombinedSequence is the largest combined sequence number.
	MaxCombinedSequence = 1<<48 - 1
)

// Nonce is an immutable, parsed SaltyRTC nonce.
type Nonce struct {
	cookie      Cookie
	source      uint8
	destination uint8
	overflow    uint16
	sequence    uint32
}

// New validates the fields and builds a nonce.
func New(cookie []byte, source, destination uint8, overflow uint32, sequence uint64) (*Nonce, error) {
	c, err := CookieFromBytes(cookie)
	if err != nil {
		return nil, err
	}
	if overflow > MaxOverflow {
		return nil, fmt.Errorf("%w: overflow must be between 0 and 2**16-1, got %d", protocol.ErrArgument, overflow)
	}
	if sequence > MaxSequence {
		return nil, fmt.Errorf("%w: sequence must be between 0 and 2**32-1, got %d", protocol.ErrArgument, sequence)
	}
	return &Nonce{
		cookie:      c,
		source:      source,
		destination: destination,
		overflow:    uint16(overflow),
		sequence:    uint32(sequence),
	}, nil
}

// FromCombinedSequence builds a nonce from a 48-bit combined sequence number.
func FromCombinedSequence(cookie Cookie, source, destination uint8, csn uint64) (*Nonce, error) {
	if csn > MaxCombinedSequence {
		return nil, fmt.Errorf("%w: combined sequence number %d exceeds 48 bits", protocol.ErrArgument, csn)
	}
	return New(cookie[:], source, destination, uint32(csn>>32), csn&MaxSequence)
}

// Parse decodes the 24-byte wire form.
func Parse(b []byte) (*Nonce, error) {
	if len(b) != protocol.NonceBytes {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", protocol.ErrArgument, protocol.NonceBytes, len(b))
	}
	n := &Nonce{
		source:      b[16],
		destination: b[17],
		overflow:    binary.BigEndian.Uint16(b[18:20]),
		sequence:    binary.BigEndian.Uint32(b[20:24]),
	}
	copy(n.cookie[:], b[:16])
	return n, nil
}

// Bytes returns the 24-byte wire form.
func (n *Nonce) Bytes() []byte {
	b := make([]byte, protocol.NonceBytes)
	copy(b[:16], n.cookie[:])
	b[16] = n.source
	b[17] = n.destination
	binary.BigEndian.PutUint16(b[18:20], n.overflow)
	binary.BigEndian.PutUint32(b[20:24], n.sequence)
	return b
}

// Cookie returns the cookie.
func (n *Nonce) Cookie() Cookie { return n.cookie }

// Source returns the sender address.
func (n *Nonce) Source() uint8 { return n.source }

// Destination returns the receiver address.
func (n *Nonce) Destination() uint8 { return n.destination }

// Overflow returns the high 16 bits of the combined sequence number.
func (n *Nonce) Overflow() uint16 { return n.overflow }

// Sequence returns the low 32 bits of the combined sequence number.
func (n *Nonce) Sequence() uint32 { return n.sequence }

// CombinedSequence returns overflow<<32 | sequence.
func (n *Nonce) CombinedSequence() uint64 {
	combined := uint64(n.overflow)<<32 | uint64(n.sequence)
	if combined > MaxCombinedSequence {
		panic("nonce: combined sequence number exceeds 48 bits")
	}
	return combined
}

// MessageID returns the 8 bytes that identify a message to the relay
// (source, destination, overflow and sequence).
func (n *Nonce) MessageID() []byte {
	return n.Bytes()[16:]
}

func (n *Nonce) String() string {
	return fmt.Sprintf("nonce(%#02x->%#02x csn=%d)", n.source, n.destination, n.CombinedSequence())
}
