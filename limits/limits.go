package limits

import (
	"errors"
	"fmt"
)

const (
	// NonceSize is the size of the nonce that prefixes every frame.
	NonceSize = 24

	// EncryptionOverhead is the Poly1305 tag added by box.Seal and
	// secretbox.Seal.
	EncryptionOverhead = 16 // golang.org/x/crypto/nacl/box.Overhead

	// MinFrameSize is a nonce plus the smallest MessagePack value.
	MinFrameSize = NonceSize + 1

	// MaxFrameSize is the absolute maximum for a received frame (1MB).
	MaxFrameSize = 1024 * 1024

	// MaxPlaintextPayload is the largest plaintext that fits in a frame.
	MaxPlaintextPayload = MaxFrameSize - NonceSize - EncryptionOverhead
)

var (
	// ErrFrameTooShort indicates a frame without room for nonce and payload
	ErrFrameTooShort = errors.New("frame too short")

	// ErrFrameTooLarge indicates a frame exceeding MaxFrameSize
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrPayloadTooLarge indicates a plaintext that cannot fit in a frame
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidateFrame checks a received or outgoing frame against the frame bounds.
// Returns an error with context including the actual and limiting sizes.
func ValidateFrame(frame []byte) error {
	if len(frame) < MinFrameSize {
		return fmt.Errorf("%w: size %d below minimum %d", ErrFrameTooShort, len(frame), MinFrameSize)
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFrameTooLarge, len(frame), MaxFrameSize)
	}
	return nil
}

// ValidatePayload checks that an encoded message fits into a frame once
// encrypted.
func ValidatePayload(payload []byte) error {
	if len(payload) > MaxPlaintextPayload {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), MaxPlaintextPayload)
	}
	return nil
}
