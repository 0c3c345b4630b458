// Package relay implements a minimal SaltyRTC relay server.
//
// A relay accepts clients on a path named after the initiator's permanent
// public key, performs the server handshake with each of them, assigns
// addresses (0x01 for the initiator, 0x02..0xff for responders) and then
// forwards end-to-end encrypted frames between the initiator and its
// responders without being able to read them.
//
// The relay is used in two ways: embedded in tests through Dialer, which
// connects clients over in-memory pipes, and stand-alone through
// ListenAndServe, which accepts WebSocket connections.
//
//	keys, _ := crypto.NewKeyStore()
//	srv := relay.NewServer(keys, relay.NewOptions())
//	err := srv.ListenAndServe(ctx, ":8765")
package relay
