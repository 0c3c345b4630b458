// Package saltyrtc implements a SaltyRTC signaling client.
//
// SaltyRTC lets two peers that share nothing but a public key and a
// one-time token establish an end-to-end encrypted channel through an
// untrusted relay. This package provides the main API facade that ties the
// subsystems together: configuration, the WebSocket transport and the
// signaling engine.
//
// # Getting Started
//
// The initiator connects first and hands its public key and auth token to
// the responder out of band, for example through a QR code:
//
//	options := saltyrtc.NewOptions()
//	options.RelayURL = "wss://relay.example.org:8765"
//
//	client, err := saltyrtc.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Kill()
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("key %x token %x\n", client.PublicPermanentKey(), client.AuthToken())
//
// The responder is configured with both values:
//
//	options := saltyrtc.NewOptions()
//	options.Role = signaling.RoleResponder
//	options.PeerPermanentKey = initiatorKey
//	options.AuthToken, _ = crypto.NewAuthTokenFromBytes(token)
//
// Once both sides are connected, WaitOpen returns and the negotiated task
// carries the application traffic:
//
//	if err := client.WaitOpen(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	rd := client.RelayedData()
//	rd.OnData(func(payload interface{}) { fmt.Println(payload) })
//	rd.Send("hello")
//
// # Configuration
//
// Options can be loaded from an INI file with the config package:
//
//	settings, err := config.Load("~/.saltyrtc/client.conf")
//	options, err := saltyrtc.OptionsFromSettings(settings)
//
// # Subpackages
//
//   - crypto: key pairs, NaCl boxes and auth tokens
//   - nonce: nonce layout, cookies and combined sequence numbers
//   - messages: the MessagePack wire messages
//   - signaling: the initiator and responder state machines
//   - tasks: task negotiation and the relayed data task
//   - transport: WebSocket and in-memory links
//   - relay: a relay server, used by tests and cmd/saltyrtc-relay
package saltyrtc
