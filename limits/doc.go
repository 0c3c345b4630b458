// Package limits provides centralized frame size constants and validation
// functions for SaltyRTC signaling. The transport, the relay and the
// signaling engine all enforce the same bounds.
//
// # Frame Size Hierarchy
//
//   - MinFrameSize: a nonce plus at least one payload byte.
//   - MaxFrameSize (1MB): the absolute maximum for any received frame. This
//     prevents memory exhaustion from a misbehaving relay or peer.
//   - MaxPlaintextPayload: the largest message that still fits into a frame
//     once the nonce and the Poly1305 tag are added.
//
// # Validation Functions
//
//	if err := limits.ValidateFrame(frame); err != nil {
//	    // ErrFrameTooShort or ErrFrameTooLarge
//	}
//
// The encryption overhead matches golang.org/x/crypto/nacl/box.Overhead.
package limits
