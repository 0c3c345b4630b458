package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/saltyrtc/limits"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/sirupsen/logrus"
)

const closeWriteTimeout = time.Second

// WebSocketConn adapts a gorilla WebSocket connection to Conn. Reads must
// come from a single goroutine; writes may be concurrent.
type WebSocketConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewWebSocketConn wraps ws and applies the frame size limit.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	ws.SetReadLimit(limits.MaxFrameSize)
	return &WebSocketConn{ws: ws, closed: make(chan struct{})}
}

// ReadFrame returns the next binary message.
func (c *WebSocketConn) ReadFrame(ctx context.Context) ([]byte, error) {
	// The socket deadline only moves once ctx is done, so a timeout
	// always surfaces as ctx.Err().
	c.ws.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, c.readError(ctx, err)
		}
		if kind != websocket.BinaryMessage {
			logrus.WithFields(logrus.Fields{
				"function": "WebSocketConn.ReadFrame",
				"kind":     kind,
			}).Warn("Ignoring non-binary WebSocket message")
			continue
		}
		return data, nil
	}
}

func (c *WebSocketConn) readError(ctx context.Context, err error) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			return context.DeadlineExceeded
		}
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: protocol.CloseCode(ce.Code)}
	}
	return fmt.Errorf("read frame: %w", err)
}

// WriteFrame sends frame as one binary message.
func (c *WebSocketConn) WriteFrame(ctx context.Context, frame []byte) error {
	if len(frame) > limits.MaxFrameSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", limits.ErrFrameTooLarge, len(frame), limits.MaxFrameSize)
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close sends a close control frame carrying code and closes the socket.
func (c *WebSocketConn) Close(code protocol.CloseCode) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(int(code), "")
		werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		c.writeMu.Unlock()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			logrus.WithFields(logrus.Fields{
				"function": "WebSocketConn.Close",
				"code":     int(code),
				"error":    werr.Error(),
			}).Debug("Failed to send close frame")
		}
		err = c.ws.Close()
	})
	return err
}

// WebSocketDialer dials the relay over WebSocket.
type WebSocketDialer struct {
	// URL is the relay base URL, e.g. "wss://relay.example.org:8765".
	URL string

	// TLSConfig is used for wss URLs. nil selects the defaults.
	TLSConfig *tls.Config

	// Header carries extra HTTP headers for the upgrade request.
	Header http.Header
}

// Dial connects to URL/path and requires the SaltyRTC subprotocol.
func (d *WebSocketDialer) Dial(ctx context.Context, path string) (Conn, error) {
	url := strings.TrimRight(d.URL, "/") + "/" + path
	dialer := websocket.Dialer{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: d.TLSConfig,
		Subprotocols:    []string{protocol.Subprotocol},
	}

	logrus.WithFields(logrus.Fields{
		"function": "WebSocketDialer.Dial",
		"url":      url,
	}).Debug("Dialing relay")

	ws, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	conn := NewWebSocketConn(ws)
	if ws.Subprotocol() != protocol.Subprotocol {
		conn.Close(protocol.CloseNoSharedSubprotocol)
		return nil, &CloseError{Code: protocol.CloseNoSharedSubprotocol}
	}
	return conn, nil
}

// Upgrader accepts relay connections over WebSocket.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader returns an Upgrader offering the SaltyRTC subprotocol.
// CheckOrigin accepts every origin, the relay authenticates by key.
func NewUpgrader() *Upgrader {
	return &Upgrader{upgrader: websocket.Upgrader{
		Subprotocols: []string{protocol.Subprotocol},
		CheckOrigin:  func(*http.Request) bool { return true },
	}}
}

// Upgrade completes the handshake and returns the connection and the
// request path without its leading slash. Clients that did not negotiate
// the subprotocol are closed with CloseNoSharedSubprotocol.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (Conn, string, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, "", fmt.Errorf("upgrade: %w", err)
	}
	conn := NewWebSocketConn(ws)
	if ws.Subprotocol() != protocol.Subprotocol {
		conn.Close(protocol.CloseNoSharedSubprotocol)
		return nil, "", &CloseError{Code: protocol.CloseNoSharedSubprotocol}
	}
	return conn, strings.TrimPrefix(r.URL.Path, "/"), nil
}
