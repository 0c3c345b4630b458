package signaling

import (
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/sirupsen/logrus"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventStateChanged carries the new State.
	EventStateChanged EventKind = iota
	// EventOpen reports that the peer handshake finished and the task is
	// ready.
	EventOpen
	// EventApplication carries the Data of an application message.
	EventApplication
	// EventPeerDisconnected reports the relay's disconnected message for
	// PeerID.
	EventPeerDisconnected
	// EventSendError reports that the relay could not deliver a message
	// to PeerID.
	EventSendError
	// EventError carries the error that is about to close the session.
	EventError
	// EventClosed is the last event of a session and carries the Code.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventOpen:
		return "open"
	case EventApplication:
		return "application"
	case EventPeerDisconnected:
		return "peer-disconnected"
	case EventSendError:
		return "send-error"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a notification delivered on Signaling.Events.
type Event struct {
	Kind   EventKind
	State  State
	Code   protocol.CloseCode
	PeerID uint8
	Data   interface{}
	Err    error
}

// CloseError describes why a session ended.
type CloseError struct {
	Code  protocol.CloseCode
	Cause error
}

func (e *CloseError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("signaling closed: %s", e.Code)
	}
	return fmt.Sprintf("signaling closed: %s: %v", e.Code, e.Cause)
}

func (e *CloseError) Unwrap() error {
	return e.Cause
}

// emit delivers ev without blocking. Events are dropped when the consumer
// falls behind.
func (s *Signaling) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Signaling.emit",
			"role":     s.role.String(),
			"event":    ev.Kind.String(),
		}).Warn("Event buffer full, dropping event")
	}
}
