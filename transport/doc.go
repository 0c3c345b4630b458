// Package transport provides the message-oriented links that carry
// SaltyRTC frames between a client and the relay.
//
// # Architecture
//
// Signaling only needs whole binary frames and a close code, so the core
// abstraction is small:
//
//	type Conn interface {
//	    ReadFrame(ctx context.Context) ([]byte, error)
//	    WriteFrame(ctx context.Context, frame []byte) error
//	    Close(code protocol.CloseCode) error
//	}
//
// When the remote end closes the link, ReadFrame returns a *CloseError
// carrying its close code. After a local Close, reads and writes fail
// with ErrClosed.
//
// # Implementations
//
// WebSocket (gorilla/websocket), negotiating the v1.saltyrtc.org
// subprotocol:
//
//	dialer := &transport.WebSocketDialer{URL: "wss://relay.example.org:8765"}
//	conn, err := dialer.Dial(ctx, pathHex)
//
// In-memory pipe, used by the embedded relay and by tests:
//
//	a, b := transport.Pipe()
//
// Frames larger than limits.MaxFrameSize are rejected in both directions.
package transport
