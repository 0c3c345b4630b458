package protocol

import "fmt"

// Subprotocol is the WebSocket subprotocol negotiated with the relay.
const Subprotocol = "v1.saltyrtc.org"

// Peer addresses as carried in the source/destination bytes of a nonce.
const (
	// IDServer addresses the relay server itself.
	IDServer uint8 = 0x00
	// IDInitiator is the fixed address of the initiator.
	IDInitiator uint8 = 0x01
	// IDResponderMin is the lowest address the relay assigns to a responder.
	IDResponderMin uint8 = 0x02
	// IDResponderMax is the highest address the relay assigns to a responder.
	IDResponderMax uint8 = 0xff
)

// Key and token sizes.
const (
	KeyBytes       = 32
	AuthTokenBytes = 32
	CookieBytes    = 16
	NonceBytes     = 24
)

// IsResponderID reports whether id lies in the responder address range.
func IsResponderID(id uint8) bool {
	return id >= IDResponderMin
}

// CloseCode is the reason reported when a connection or peer link ends.
type CloseCode int

const (
	// CloseNormal is reported after a local, orderly disconnect.
	CloseNormal CloseCode = 1000
	// CloseGoingAway is sent to the peer when we disconnect normally.
	CloseGoingAway CloseCode = 1001
	// CloseNoSharedSubprotocol is used by the relay when subprotocols differ.
	CloseNoSharedSubprotocol CloseCode = 1002
	// ClosePathFull is used by the relay when no responder slot is free.
	ClosePathFull CloseCode = 3000
	// CloseProtocolError covers nonce, ordering and message violations.
	CloseProtocolError CloseCode = 3001
	// CloseInternalError covers local failures unrelated to the peer.
	CloseInternalError CloseCode = 3002
	// CloseHandover means the signaling channel moved to the task.
	CloseHandover CloseCode = 3003
	// CloseDroppedByInitiator is sent to responders the initiator rejects.
	CloseDroppedByInitiator CloseCode = 3004
	// CloseInitiatorCouldNotDecrypt is used when a token fails to decrypt.
	CloseInitiatorCouldNotDecrypt CloseCode = 3005
	// CloseNoSharedTask means task negotiation found no common task.
	CloseNoSharedTask CloseCode = 3006
	// CloseInvalidKey means a key was malformed or failed verification.
	CloseInvalidKey CloseCode = 3007
	// CloseTimeout means connecting did not finish in time.
	CloseTimeout CloseCode = 3008
)

var closeCodeNames = map[CloseCode]string{
	CloseNormal:                   "closing normal",
	CloseGoingAway:                "going away",
	CloseNoSharedSubprotocol:      "no shared subprotocol",
	ClosePathFull:                 "path full",
	CloseProtocolError:            "protocol error",
	CloseInternalError:            "internal error",
	CloseHandover:                 "handover",
	CloseDroppedByInitiator:       "dropped by initiator",
	CloseInitiatorCouldNotDecrypt: "initiator could not decrypt",
	CloseNoSharedTask:             "no shared task",
	CloseInvalidKey:               "invalid key",
	CloseTimeout:                  "timeout",
}

func (c CloseCode) String() string {
	if name, ok := closeCodeNames[c]; ok {
		return fmt.Sprintf("%s (%d)", name, int(c))
	}
	return fmt.Sprintf("unknown close code (%d)", int(c))
}

// Known reports whether c is one of the documented close codes.
func (c CloseCode) Known() bool {
	_, ok := closeCodeNames[c]
	return ok
}

// IsDropReason reports whether c may be used in a drop-responder message.
func (c CloseCode) IsDropReason() bool {
	switch c {
	case CloseProtocolError, CloseInternalError, CloseDroppedByInitiator, CloseInitiatorCouldNotDecrypt:
		return true
	}
	return false
}
