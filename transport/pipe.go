package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/opd-ai/saltyrtc/limits"
	"github.com/opd-ai/saltyrtc/protocol"
)

const pipeBuffer = 128

type pipeSide struct {
	once sync.Once
	done chan struct{}
	code protocol.CloseCode
}

func (s *pipeSide) close(code protocol.CloseCode) {
	s.once.Do(func() {
		s.code = code
		close(s.done)
	})
}

// pipeConn is one end of an in-memory link.
type pipeConn struct {
	in     <-chan []byte
	out    chan<- []byte
	local  *pipeSide
	remote *pipeSide
}

// Pipe returns two connected in-memory Conns. A frame written to one end
// is read from the other. Closing one end makes the other end's reads fail
// with a *CloseError once all pending frames were delivered.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	sa := &pipeSide{done: make(chan struct{})}
	sb := &pipeSide{done: make(chan struct{})}

	a := &pipeConn{in: ba, out: ab, local: sa, remote: sb}
	b := &pipeConn{in: ab, out: ba, local: sb, remote: sa}
	return a, b
}

func (p *pipeConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	default:
	}

	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.local.done:
		return nil, ErrClosed
	case <-p.remote.done:
		// Deliver frames written before the remote end closed.
		select {
		case frame := <-p.in:
			return frame, nil
		default:
			return nil, &CloseError{Code: p.remote.code}
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeConn) WriteFrame(ctx context.Context, frame []byte) error {
	if len(frame) > limits.MaxFrameSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", limits.ErrFrameTooLarge, len(frame), limits.MaxFrameSize)
	}

	select {
	case <-p.local.done:
		return ErrClosed
	case <-p.remote.done:
		return &CloseError{Code: p.remote.code}
	default:
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case p.out <- buf:
		return nil
	case <-p.local.done:
		return ErrClosed
	case <-p.remote.done:
		return &CloseError{Code: p.remote.code}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Close(code protocol.CloseCode) error {
	p.local.close(code)
	return nil
}

// PipeDialer dials in-memory links through a callback, typically
// relay.Server.Accept.
type PipeDialer struct {
	Accept func(path string, conn Conn) error
}

// Dial creates a pipe and hands the far end to Accept.
func (d *PipeDialer) Dial(ctx context.Context, path string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	local, remote := Pipe()
	if err := d.Accept(path, remote); err != nil {
		local.Close(protocol.CloseInternalError)
		return nil, fmt.Errorf("dial pipe %s: %w", path, err)
	}
	return local, nil
}
