package signaling

import (
	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/tasks"
	"github.com/opd-ai/saltyrtc/transport"
)

// DefaultEventBuffer is the capacity of the event channel.
const DefaultEventBuffer = 64

// Options configures a session.
type Options struct {
	// Dialer connects to the relay. Required.
	Dialer transport.Dialer

	// Keys is our permanent key pair. A fresh pair is generated when nil.
	// The session owns the keys and wipes the secret when it closes.
	Keys *crypto.KeyStore

	// PeerPermanentKey is the initiator's public key for a responder
	// (required) or the trusted responder's key for an initiator, which
	// then skips the token step.
	PeerPermanentKey []byte

	// AuthToken authenticates the responder's first message. An initiator
	// generates one when nil. A responder needs it unless Trusted is set.
	AuthToken *crypto.AuthToken

	// Trusted tells a responder that the initiator already knows its
	// permanent key, so no token is sent.
	Trusted bool

	// ServerKey, when set, pins the relay's permanent public key.
	ServerKey []byte

	// Tasks lists the supported tasks in order of preference. Required.
	Tasks []tasks.Task

	// PingInterval is requested from the relay, in seconds. 0 disables.
	PingInterval uint32

	// EventBuffer overrides DefaultEventBuffer.
	EventBuffer int
}
