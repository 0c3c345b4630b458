package signaling

import (
	"bytes"
	"fmt"

	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/messages"
	"github.com/opd-ai/saltyrtc/nonce"
	"github.com/opd-ai/saltyrtc/protocol"
)

func (s *Signaling) handleServerHandshake(n *nonce.Nonce, box *crypto.Box) error {
	switch s.server.Handshake {
	case ServerHandshakeNew:
		return s.handleServerHello(n, box)
	case ServerHandshakeAuthSent:
		return s.handleServerAuth(n, box)
	}
	return fmt.Errorf("%w: unexpected frame in server handshake state %s", protocol.ErrProtocol, s.server.Handshake)
}

// handleServerHello stores the relay's session key and answers with
// client-hello (responder only) and client-auth.
func (s *Signaling) handleServerHello(n *nonce.Nonce, box *crypto.Box) error {
	if n.Destination() != protocol.IDServer {
		return fmt.Errorf("%w: server-hello addressed to %#02x", protocol.ErrProtocol, n.Destination())
	}
	msg, err := s.receiveLocked(s.server, n, box, plain)
	if err != nil {
		return err
	}
	hello, ok := msg.(*messages.ServerHello)
	if !ok {
		return fmt.Errorf("%w: expected server-hello, got %s", protocol.ErrProtocol, msg.MessageType())
	}
	if err := crypto.ValidatePublicKey(hello.Key); err != nil {
		return fmt.Errorf("server session key: %w", err)
	}
	s.server.sessionKey = copyBytes(hello.Key)
	if err := advance(&s.server.Handshake, ServerHandshakeHelloReceived); err != nil {
		return err
	}

	if s.role == RoleResponder {
		if err := s.sendLocked(s.server, &messages.ClientHello{Key: s.keys.PublicKey()}, plain); err != nil {
			return err
		}
	}
	auth := &messages.ClientAuth{
		YourCookie:   theirCookie(s.server),
		Subprotocols: []string{protocol.Subprotocol},
		PingInterval: s.ping,
		YourKey:      s.serverKey,
	}
	if err := s.sendLocked(s.server, auth, withPermanent); err != nil {
		return err
	}
	return advance(&s.server.Handshake, ServerHandshakeAuthSent)
}

// handleServerAuth completes the server handshake. Our address is the
// destination of the server-auth nonce.
func (s *Signaling) handleServerAuth(n *nonce.Nonce, box *crypto.Box) error {
	dst := n.Destination()
	switch {
	case s.role == RoleInitiator && dst != protocol.IDInitiator,
		s.role == RoleResponder && !protocol.IsResponderID(dst):
		return fmt.Errorf("%w: relay assigned %#02x to a %s", protocol.ErrProtocol, dst, s.role)
	}

	msg, err := s.receiveLocked(s.server, n, box, withPermanent)
	if err != nil {
		return err
	}
	auth, ok := msg.(*messages.ServerAuth)
	if !ok {
		return fmt.Errorf("%w: expected server-auth, got %s", protocol.ErrProtocol, msg.MessageType())
	}
	if !bytes.Equal(auth.YourCookie, s.server.Cookies().Ours().Bytes()) {
		return fmt.Errorf("%w: server-auth repeats the wrong cookie", protocol.ErrProtocol)
	}
	if s.serverKey != nil {
		if err := s.verifySignedKeys(box, auth.SignedKeys); err != nil {
			return err
		}
	}

	s.id = dst
	if err := advance(&s.server.Handshake, ServerHandshakeDone); err != nil {
		return err
	}
	s.setState(StatePeerHandshake)
	close(s.serverReady)
	s.log("Signaling.handleServerAuth").Info("Server handshake done")

	if s.role == RoleInitiator {
		return s.initiatorServerAuth(auth)
	}
	return s.responderServerAuth(auth)
}

// verifySignedKeys checks that the pinned relay key signed the session
// key of this connection together with our permanent key.
func (s *Signaling) verifySignedKeys(authBox *crypto.Box, signedKeys []byte) error {
	if len(signedKeys) == 0 {
		return fmt.Errorf("%w: relay did not sign its keys", protocol.ErrInvalidKey)
	}
	signed, err := s.keys.Decrypt(&crypto.Box{Nonce: authBox.Nonce, Data: signedKeys}, s.serverKey)
	if err != nil {
		return fmt.Errorf("%w: signed keys do not verify: %v", protocol.ErrInvalidKey, err)
	}
	expected := make([]byte, 0, 2*protocol.KeyBytes)
	expected = append(expected, s.server.SessionKey()...)
	expected = append(expected, s.keys.PublicKey()...)
	if !bytes.Equal(signed, expected) {
		return fmt.Errorf("%w: signed keys do not match", protocol.ErrInvalidKey)
	}
	return nil
}

// handleServerMessage processes relay messages after the server handshake.
func (s *Signaling) handleServerMessage(n *nonce.Nonce, box *crypto.Box) error {
	msg, err := s.receiveLocked(s.server, n, box, withPermanent)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *messages.NewResponder:
		if s.role != RoleInitiator {
			break
		}
		return s.handleNewResponder(m.ID)
	case *messages.NewInitiator:
		if s.role != RoleResponder {
			break
		}
		return s.handleNewInitiator()
	case *messages.Disconnected:
		return s.handleDisconnected(m.ID)
	case *messages.SendError:
		return s.handleSendError(m.ID)
	}
	return fmt.Errorf("%w: unexpected %s message from relay", protocol.ErrProtocol, msg.MessageType())
}

// handleSendError reports an undeliverable message. id is the source,
// destination and sequence number part of its nonce.
func (s *Signaling) handleSendError(id []byte) error {
	if len(id) != 8 {
		return fmt.Errorf("%w: send-error id has %d bytes", protocol.ErrProtocol, len(id))
	}
	src, dst := id[0], id[1]
	if src != s.id {
		return fmt.Errorf("%w: send-error for a message from %#02x", protocol.ErrProtocol, src)
	}
	s.log("Signaling.handleSendError").WithField("destination", dst).Warn("Relay could not deliver message")
	s.emit(Event{Kind: EventSendError, PeerID: dst})

	if s.state == StateOpen {
		return nil
	}
	if s.role == RoleInitiator {
		s.removeResponder(dst)
		return nil
	}
	return s.resetInitiator(false)
}
