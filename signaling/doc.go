// Package signaling implements both client roles of the SaltyRTC signaling
// protocol on top of a relay link.
//
// # Session lifecycle
//
// A session starts in StateNew. Connect dials the relay and runs the server
// handshake; the session then waits in StatePeerHandshake until the peer
// handshake with the other role completes and it becomes StateOpen. Any
// error on the relay link, a close from the peer or Disconnect moves it
// through StateClosing to StateClosed, which is terminal.
//
//	init, err := signaling.NewInitiator(&signaling.Options{
//	    Dialer: dialer,
//	    Tasks:  []tasks.Task{tasks.NewRelayedData()},
//	})
//	if err := init.Connect(ctx); err != nil {
//	    return err
//	}
//	// hand init.PublicPermanentKey() and init.AuthToken() to the responder
//	if err := init.WaitOpen(ctx); err != nil {
//	    return err
//	}
//
// # Roles
//
// The initiator owns the relay path, which is the hex encoding of its
// permanent public key. It accepts any number of responders, runs the
// peer handshake with each and picks the first one that completes it.
// Every other responder is then dropped through the relay.
//
// A responder knows the initiator's permanent key and, unless the
// initiator already trusts it, the one-time auth token.
//
// # Events
//
// State changes, application messages and errors are published on the
// channel returned by Events. The channel is buffered and events are
// dropped with a warning when the consumer falls behind; Done and
// CloseCode always reflect the final outcome.
package signaling
