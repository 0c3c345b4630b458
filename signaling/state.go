package signaling

import (
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
)

// State is the overall signaling state of a session.
type State int

const (
	StateNew State = iota
	StateServerHandshake
	StatePeerHandshake
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateServerHandshake:
		return "server-handshake"
	case StatePeerHandshake:
		return "peer-handshake"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ServerHandshakeState tracks the handshake with the relay.
type ServerHandshakeState int

const (
	ServerHandshakeNew ServerHandshakeState = iota
	ServerHandshakeHelloReceived
	ServerHandshakeAuthSent
	ServerHandshakeDone
)

func (s ServerHandshakeState) String() string {
	switch s {
	case ServerHandshakeNew:
		return "new"
	case ServerHandshakeHelloReceived:
		return "hello-received"
	case ServerHandshakeAuthSent:
		return "auth-sent"
	case ServerHandshakeDone:
		return "done"
	}
	return fmt.Sprintf("server-handshake(%d)", int(s))
}

// InitiatorHandshakeState is the responder's view of the handshake with
// the initiator.
type InitiatorHandshakeState int

const (
	InitiatorHandshakeNew InitiatorHandshakeState = iota
	InitiatorHandshakeTokenSent
	InitiatorHandshakeKeySent
	InitiatorHandshakeKeyReceived
	InitiatorHandshakeAuthSent
	InitiatorHandshakeAuthReceived
)

func (s InitiatorHandshakeState) String() string {
	switch s {
	case InitiatorHandshakeNew:
		return "new"
	case InitiatorHandshakeTokenSent:
		return "token-sent"
	case InitiatorHandshakeKeySent:
		return "key-sent"
	case InitiatorHandshakeKeyReceived:
		return "key-received"
	case InitiatorHandshakeAuthSent:
		return "auth-sent"
	case InitiatorHandshakeAuthReceived:
		return "auth-received"
	}
	return fmt.Sprintf("initiator-handshake(%d)", int(s))
}

// ResponderHandshakeState is the initiator's view of the handshake with
// one responder.
type ResponderHandshakeState int

const (
	ResponderHandshakeNew ResponderHandshakeState = iota
	ResponderHandshakeTokenReceived
	ResponderHandshakeKeyReceived
	ResponderHandshakeKeySent
	ResponderHandshakeAuthReceived
	ResponderHandshakeAuthSent
)

func (s ResponderHandshakeState) String() string {
	switch s {
	case ResponderHandshakeNew:
		return "new"
	case ResponderHandshakeTokenReceived:
		return "token-received"
	case ResponderHandshakeKeyReceived:
		return "key-received"
	case ResponderHandshakeKeySent:
		return "key-sent"
	case ResponderHandshakeAuthReceived:
		return "auth-received"
	case ResponderHandshakeAuthSent:
		return "auth-sent"
	}
	return fmt.Sprintf("responder-handshake(%d)", int(s))
}

type handshakeState interface {
	~int
	String() string
}

// advance moves a handshake state strictly forward. Steps may be skipped
// (the token step is optional) but never repeated or reverted.
func advance[S handshakeState](current *S, next S) error {
	if next <= *current {
		return fmt.Errorf("%w: handshake cannot move from %s to %s", protocol.ErrProtocol, *current, next)
	}
	*current = next
	return nil
}
