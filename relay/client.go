package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/limits"
	"github.com/opd-ai/saltyrtc/messages"
	"github.com/opd-ai/saltyrtc/nonce"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/transport"
	"github.com/sirupsen/logrus"
)

var (
	errPathFull            = errors.New("relay: path full")
	errNoSharedSubprotocol = errors.New("relay: no shared subprotocol")
)

// client is one connection to the relay. mu serializes the server-side
// cookie and sequence state together with writes of server messages, so
// that frames leave in sequence order.
type client struct {
	conn      transport.Conn
	pathHex   string
	session   *crypto.KeyStore
	initiator bool

	// Set during the handshake, read-only afterwards.
	permanentKey []byte
	id           uint8

	mu      sync.Mutex
	cookies *nonce.CookiePair
	csn     *nonce.CombinedSequencePair
}

func newClient(conn transport.Conn, pathHex string) (*client, error) {
	session, err := crypto.NewKeyStore()
	if err != nil {
		return nil, err
	}
	cookies, err := nonce.NewCookiePair()
	if err != nil {
		return nil, err
	}
	csn, err := nonce.NewCombinedSequencePair()
	if err != nil {
		return nil, err
	}
	return &client{conn: conn, pathHex: pathHex, session: session, cookies: cookies, csn: csn}, nil
}

func (c *client) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"path":     c.pathHex[:16],
		"id":       c.id,
	})
}

// sendPlain sends an unencrypted message, used for server-hello only.
func (c *client) sendPlain(ctx context.Context, msg messages.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.nextNonce(protocol.IDServer)
	if err != nil {
		return err
	}
	data, err := messages.Encode(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteFrame(ctx, append(n.Bytes(), data...))
}

func (c *client) send(ctx context.Context, msg messages.Message) error {
	return c.sendBuilt(ctx, func(*nonce.Nonce) (messages.Message, error) { return msg, nil })
}

// sendBuilt encrypts the message returned by build for the client. build
// receives the nonce the message will be sent with.
func (c *client) sendBuilt(ctx context.Context, build func(*nonce.Nonce) (messages.Message, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.nextNonce(c.id)
	if err != nil {
		return err
	}
	msg, err := build(n)
	if err != nil {
		return err
	}
	data, err := messages.Encode(msg)
	if err != nil {
		return err
	}
	box, err := c.session.Encrypt(data, n.Bytes(), c.permanentKey)
	if err != nil {
		return err
	}
	return c.conn.WriteFrame(ctx, box.Bytes())
}

func (c *client) nextNonce(destination uint8) (*nonce.Nonce, error) {
	csn, err := c.csn.Ours().Next()
	if err != nil {
		return nil, err
	}
	return nonce.FromCombinedSequence(c.cookies.Ours(), protocol.IDServer, destination, csn)
}

// check validates a frame addressed to the relay: size, addresses, cookie
// and sequence number. The cookie and sequence number are committed.
func (c *client) check(frame []byte, source uint8) (*crypto.Box, error) {
	if err := limits.ValidateFrame(frame); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
	}
	box, err := crypto.ParseBox(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
	}
	n, err := nonce.Parse(box.Nonce[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
	}
	if n.Source() != source || n.Destination() != protocol.IDServer {
		return nil, fmt.Errorf("%w: unexpected addresses %#02x->%#02x", protocol.ErrProtocol, n.Source(), n.Destination())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cookies.CheckTheirs(n.Cookie()); err != nil {
		return nil, err
	}
	if err := c.csn.UpdateTheirs(n.CombinedSequence()); err != nil {
		return nil, err
	}
	if err := c.cookies.SetTheirs(n.Cookie()); err != nil {
		return nil, err
	}
	return box, nil
}

func (c *client) receive(ctx context.Context) (*crypto.Box, error) {
	frame, err := c.conn.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	return c.check(frame, protocol.IDServer)
}

func (s *Server) closeCodeFor(err error) protocol.CloseCode {
	switch {
	case s.ctx.Err() != nil:
		return protocol.CloseGoingAway
	case errors.Is(err, errPathFull):
		return protocol.ClosePathFull
	case errors.Is(err, errNoSharedSubprotocol):
		return protocol.CloseNoSharedSubprotocol
	case errors.Is(err, ErrServerClosed):
		return protocol.CloseGoingAway
	default:
		return protocol.CloseCodeFor(err)
	}
}

func (s *Server) serve(pathKey []byte, conn transport.Conn) {
	c, err := newClient(conn, hex.EncodeToString(pathKey))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Server.serve",
			"error":    err.Error(),
		}).Warn("Failed to set up client")
		conn.Close(protocol.CloseInternalError)
		return
	}
	defer c.session.Close()

	hctx, cancel := context.WithTimeout(s.ctx, s.options.HandshakeTimeout)
	err = s.handshake(hctx, c, pathKey)
	cancel()
	if err != nil {
		code := s.closeCodeFor(err)
		c.log("Server.serve").WithFields(logrus.Fields{
			"error": err.Error(),
			"code":  int(code),
		}).Debug("Server handshake failed")
		conn.Close(code)
		return
	}
	defer s.leave(c)

	err = s.receiveLoop(c)
	if _, remote := transport.CloseCodeOf(err); remote || errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
		conn.Close(protocol.CloseNormal)
		return
	}
	code := s.closeCodeFor(err)
	c.log("Server.serve").WithFields(logrus.Fields{
		"error": err.Error(),
		"code":  int(code),
	}).Debug("Closing client")
	conn.Close(code)
}

func (s *Server) handshake(ctx context.Context, c *client, pathKey []byte) error {
	if err := c.sendPlain(ctx, &messages.ServerHello{Key: c.session.PublicKey()}); err != nil {
		return err
	}

	box, err := c.receive(ctx)
	if err != nil {
		return err
	}
	if hello, err := messages.Expect[*messages.ClientHello](box.Data); err == nil {
		if err := crypto.ValidatePublicKey(hello.Key); err != nil {
			return err
		}
		c.permanentKey = hello.Key
		if box, err = c.receive(ctx); err != nil {
			return err
		}
	} else {
		c.permanentKey = pathKey
		c.initiator = true
	}

	plaintext, err := c.session.Decrypt(box, c.permanentKey)
	if err != nil {
		return err
	}
	auth, err := messages.Expect[*messages.ClientAuth](plaintext)
	if err != nil {
		return err
	}
	if !bytes.Equal(auth.YourCookie, c.cookies.Ours().Bytes()) {
		return fmt.Errorf("%w: client-auth repeats the wrong cookie", protocol.ErrProtocol)
	}
	if !containsString(auth.Subprotocols, protocol.Subprotocol) {
		return fmt.Errorf("%w: offered %v", errNoSharedSubprotocol, auth.Subprotocols)
	}
	if auth.YourKey != nil && !bytes.Equal(auth.YourKey, s.keys.PublicKey()) {
		return fmt.Errorf("%w: client expects a different relay key", protocol.ErrInvalidKey)
	}

	return s.join(ctx, c)
}

// join assigns an address, sends server-auth and announces the client to
// the other side of the path.
func (s *Server) join(ctx context.Context, c *client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}

	p, ok := s.paths[c.pathHex]
	if !ok {
		p = newPath()
		s.paths[c.pathHex] = p
	}
	defer func() {
		if p.empty() {
			delete(s.paths, c.pathHex)
		}
	}()

	if c.initiator {
		c.id = protocol.IDInitiator
	} else {
		id, ok := p.freeResponderID(s.options.MaxResponders)
		if !ok {
			return errPathFull
		}
		c.id = id
	}

	err := c.sendBuilt(ctx, func(n *nonce.Nonce) (messages.Message, error) {
		return s.serverAuth(c, p, n)
	})
	if err != nil {
		return err
	}

	if c.initiator {
		if previous := p.initiator; previous != nil {
			previous.log("Server.join").Debug("Replacing initiator")
			previous.conn.Close(protocol.CloseGoingAway)
		}
		p.initiator = c
		for _, r := range p.responders {
			s.notify(r, &messages.NewInitiator{})
		}
	} else {
		p.responders[c.id] = c
		if p.initiator != nil {
			s.notify(p.initiator, &messages.NewResponder{ID: c.id})
		}
	}

	c.log("Server.join").WithField("initiator", c.initiator).Info("Client authenticated")
	return nil
}

func (s *Server) serverAuth(c *client, p *path, n *nonce.Nonce) (messages.Message, error) {
	auth := &messages.ServerAuth{YourCookie: c.theirCookieLocked()}

	signed := append(c.session.PublicKey(), c.permanentKey...)
	box, err := s.keys.Encrypt(signed, n.Bytes(), c.permanentKey)
	if err != nil {
		return nil, err
	}
	auth.SignedKeys = box.Data

	if c.initiator {
		auth.Responders = p.responderIDs()
	} else {
		connected := p.initiator != nil
		auth.InitiatorConnected = &connected
	}
	return auth, nil
}

// theirCookieLocked returns the client cookie. The caller holds c.mu.
func (c *client) theirCookieLocked() []byte {
	theirs, _ := c.cookies.Theirs()
	return theirs.Bytes()
}

func (s *Server) notify(c *client, msg messages.Message) {
	if err := c.send(s.ctx, msg); err != nil {
		c.log("Server.notify").WithFields(logrus.Fields{
			"type":  msg.MessageType(),
			"error": err.Error(),
		}).Debug("Failed to notify client")
	}
}

func (s *Server) receiveLoop(c *client) error {
	for {
		frame, err := c.conn.ReadFrame(s.ctx)
		if err != nil {
			return err
		}
		if err := limits.ValidateFrame(frame); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
		}
		n, err := nonce.Parse(frame[:protocol.NonceBytes])
		if err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
		}
		if n.Source() != c.id {
			return fmt.Errorf("%w: source %#02x does not match client %#02x", protocol.ErrProtocol, n.Source(), c.id)
		}

		if n.Destination() == protocol.IDServer {
			err = s.handleServerMessage(c, frame)
		} else {
			err = s.forward(c, n, frame)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Server) handleServerMessage(c *client, frame []byte) error {
	box, err := c.check(frame, c.id)
	if err != nil {
		return err
	}
	plaintext, err := c.session.Decrypt(box, c.permanentKey)
	if err != nil {
		return err
	}
	msg, err := messages.Decode(plaintext)
	if err != nil {
		return err
	}

	drop, ok := msg.(*messages.DropResponder)
	if !ok || !c.initiator {
		return fmt.Errorf("%w: unexpected %s message from %#02x", protocol.ErrProtocol, msg.MessageType(), c.id)
	}
	if !protocol.IsResponderID(drop.ID) {
		return fmt.Errorf("%w: cannot drop %#02x", protocol.ErrProtocol, drop.ID)
	}
	reason := protocol.CloseCode(drop.Reason)
	if drop.Reason == 0 {
		reason = protocol.CloseDroppedByInitiator
	}
	if !reason.IsDropReason() {
		return fmt.Errorf("%w: invalid drop reason %d", protocol.ErrProtocol, drop.Reason)
	}
	s.drop(c.pathHex, drop.ID, reason)
	return nil
}

func (s *Server) drop(pathHex string, id uint8, reason protocol.CloseCode) {
	s.mu.Lock()
	p := s.paths[pathHex]
	var target *client
	if p != nil {
		target = p.responders[id]
		delete(p.responders, id)
	}
	s.mu.Unlock()

	if target == nil {
		return
	}
	target.log("Server.drop").WithField("reason", int(reason)).Debug("Dropping responder")
	target.conn.Close(reason)
}

// forward relays an end-to-end frame. Only initiator<->responder traffic
// is allowed. Undeliverable frames are reported with send-error.
func (s *Server) forward(c *client, n *nonce.Nonce, frame []byte) error {
	dst := n.Destination()
	allowed := protocol.IsResponderID(dst)
	if !c.initiator {
		allowed = dst == protocol.IDInitiator
	}
	if !allowed {
		return fmt.Errorf("%w: %#02x may not address %#02x", protocol.ErrProtocol, c.id, dst)
	}

	s.mu.Lock()
	var target *client
	if p := s.paths[c.pathHex]; p != nil {
		if dst == protocol.IDInitiator {
			target = p.initiator
		} else {
			target = p.responders[dst]
		}
	}
	s.mu.Unlock()

	if target != nil {
		err := target.conn.WriteFrame(s.ctx, frame)
		if err == nil {
			return nil
		}
		target.log("Server.forward").WithField("error", err.Error()).Debug("Relaying failed")
	}
	return c.send(s.ctx, &messages.SendError{ID: n.MessageID()})
}

// leave removes c from its path and tells the other side.
func (s *Server) leave(c *client) {
	s.mu.Lock()
	var notify []*client
	if p := s.paths[c.pathHex]; p != nil {
		if c.initiator && p.initiator == c {
			p.initiator = nil
			for _, r := range p.responders {
				notify = append(notify, r)
			}
		} else if !c.initiator && p.responders[c.id] == c {
			delete(p.responders, c.id)
			if p.initiator != nil {
				notify = append(notify, p.initiator)
			}
		}
		if p.empty() {
			delete(s.paths, c.pathHex)
		}
	}
	s.mu.Unlock()

	c.log("Server.leave").Debug("Client left")
	for _, other := range notify {
		s.notify(other, &messages.Disconnected{ID: c.id})
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
