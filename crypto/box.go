package crypto

import (
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
)

// Box is an authenticated ciphertext together with the nonce that sealed it.
type Box struct {
	Nonce [protocol.NonceBytes]byte
	Data  []byte
}

// NewBox builds a box from a 24-byte nonce and ciphertext.
func NewBox(nonce, data []byte) (*Box, error) {
	if len(nonce) != protocol.NonceBytes {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", protocol.ErrArgument, protocol.NonceBytes, len(nonce))
	}
	b := &Box{Data: data}
	copy(b.Nonce[:], nonce)
	return b, nil
}

// ParseBox splits a wire frame into nonce and data.
func ParseBox(frame []byte) (*Box, error) {
	if len(frame) < protocol.NonceBytes {
		return nil, fmt.Errorf("%w: frame of %d bytes is shorter than a nonce", protocol.ErrArgument, len(frame))
	}
	return NewBox(frame[:protocol.NonceBytes], frame[protocol.NonceBytes:])
}

// Bytes returns the wire encoding: nonce followed by data.
func (b *Box) Bytes() []byte {
	out := make([]byte, 0, len(b.Nonce)+len(b.Data))
	out = append(out, b.Nonce[:]...)
	return append(out, b.Data...)
}
