package protocol

import (
	"context"
	"errors"
)

// Error kinds. Concrete errors wrap one of these with fmt.Errorf("%w: ...").
var (
	// ErrArgument reports malformed input to a constructor.
	ErrArgument = errors.New("invalid argument")
	// ErrInvalidKey reports a malformed or unverifiable key.
	ErrInvalidKey = errors.New("invalid key")
	// ErrCrypto reports a failed encryption or authentication check.
	ErrCrypto = errors.New("crypto failure")
	// ErrValidation reports a replayed or reordered combined sequence number.
	ErrValidation = errors.New("validation failed")
	// ErrProtocol reports a message that violates the handshake order.
	ErrProtocol = errors.New("protocol violation")
	// ErrOverflow reports an exhausted combined sequence number.
	ErrOverflow = errors.New("combined sequence number overflow")
	// ErrNoSharedTask reports that task negotiation found no common task.
	ErrNoSharedTask = errors.New("no shared task")
)

// CloseCodeFor maps an error onto the close code reported to the application.
func CloseCodeFor(err error) CloseCode {
	switch {
	case err == nil:
		return CloseNormal
	case errors.Is(err, ErrNoSharedTask):
		return CloseNoSharedTask
	case errors.Is(err, ErrInvalidKey):
		return CloseInvalidKey
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrProtocol),
		errors.Is(err, ErrCrypto):
		return CloseProtocolError
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return CloseTimeout
	default:
		return CloseInternalError
	}
}
