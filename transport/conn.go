package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
)

// ErrClosed is returned by operations on a link that was closed locally.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a bidirectional link carrying whole binary frames.
type Conn interface {
	// ReadFrame blocks until a frame arrives, the link closes or ctx ends.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame sends one frame.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close ends the link with the given close code. It is idempotent.
	Close(code protocol.CloseCode) error
}

// Dialer opens a Conn to the relay path identified by path (the hex
// encoded initiator key).
type Dialer interface {
	Dial(ctx context.Context, path string) (Conn, error)
}

// CloseError reports that the remote end closed the link.
type CloseError struct {
	Code protocol.CloseCode
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("transport: closed by remote: %s", e.Code)
}

// CloseCodeOf extracts the remote close code from err.
func CloseCodeOf(err error) (protocol.CloseCode, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}
