package signaling

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/messages"
	"github.com/opd-ai/saltyrtc/nonce"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/tasks"
	"github.com/sirupsen/logrus"
)

// dropError fails the handshake with one responder using a specific close
// code.
type dropError struct {
	code protocol.CloseCode
	err  error
}

func (e *dropError) Error() string { return e.err.Error() }
func (e *dropError) Unwrap() error { return e.err }

func (s *Signaling) initiatorServerAuth(auth *messages.ServerAuth) error {
	if auth.InitiatorConnected != nil {
		return fmt.Errorf("%w: server-auth for an initiator carries initiator_connected", protocol.ErrProtocol)
	}
	for _, id := range auth.Responders {
		if id < int(protocol.IDResponderMin) || id > int(protocol.IDResponderMax) {
			return fmt.Errorf("%w: invalid responder address %d", protocol.ErrProtocol, id)
		}
		if err := s.addResponder(uint8(id)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Signaling) handleNewResponder(id uint8) error {
	if !protocol.IsResponderID(id) {
		return fmt.Errorf("%w: invalid responder address %#02x", protocol.ErrProtocol, id)
	}
	if s.state == StateOpen {
		s.log("Signaling.handleNewResponder").WithField("responder", id).Debug("Dropping late responder")
		return s.sendLocked(s.server, &messages.DropResponder{ID: id, Reason: int(protocol.CloseDroppedByInitiator)}, withPermanent)
	}
	return s.addResponder(id)
}

// addResponder starts tracking a responder. A responder the relay
// reassigned the address of is replaced.
func (s *Signaling) addResponder(id uint8) error {
	if old, ok := s.responders[id]; ok {
		closePeer(old)
	}
	r, err := newResponder(id)
	if err != nil {
		return err
	}
	if s.trustedKey != nil {
		r.permanentKey = s.trustedKey
		r.Handshake = ResponderHandshakeTokenReceived
	}
	s.responders[id] = r
	s.log("Signaling.addResponder").WithField("responder", id).Debug("New responder")
	return nil
}

func (s *Signaling) removeResponder(id uint8) {
	if r, ok := s.responders[id]; ok {
		closePeer(r)
		delete(s.responders, id)
	}
}

// dropResponderLocked forgets a responder and asks the relay to disconnect
// it with code.
func (s *Signaling) dropResponderLocked(r *Responder, code protocol.CloseCode) error {
	s.removeResponder(r.id)
	s.log("Signaling.dropResponder").WithFields(logrus.Fields{
		"responder": r.id,
		"reason":    code.String(),
	}).Debug("Dropping responder")
	return s.sendLocked(s.server, &messages.DropResponder{ID: r.id, Reason: int(code)}, withPermanent)
}

func (s *Signaling) handleResponderFrame(n *nonce.Nonce, box *crypto.Box) error {
	r, ok := s.responders[n.Source()]
	if !ok {
		s.log("Signaling.handleResponderFrame").WithField("responder", n.Source()).Debug("Ignoring frame from unknown responder")
		return nil
	}
	if s.state == StateOpen {
		if Peer(r) != s.peer {
			return nil
		}
		return s.handleOpenFrame(r, n, box)
	}

	err := s.handleResponderHandshake(r, n, box)
	if err == nil {
		return nil
	}

	// A failing responder is dropped, the session goes on.
	code := protocol.CloseCodeFor(err)
	var de *dropError
	if errors.As(err, &de) {
		code = de.code
	}
	if !code.IsDropReason() {
		code = protocol.CloseProtocolError
	}
	s.log("Signaling.handleResponderFrame").WithFields(logrus.Fields{
		"responder": r.id,
		"error":     err.Error(),
	}).Warn("Responder handshake failed")
	return s.dropResponderLocked(r, code)
}

func (s *Signaling) handleResponderHandshake(r *Responder, n *nonce.Nonce, box *crypto.Box) error {
	switch r.Handshake {
	case ResponderHandshakeNew:
		msg, err := s.receiveLocked(r, n, box, withToken)
		if errors.Is(err, protocol.ErrCrypto) {
			return &dropError{code: protocol.CloseInitiatorCouldNotDecrypt, err: err}
		}
		if err != nil {
			return err
		}
		token, ok := msg.(*messages.Token)
		if !ok {
			return fmt.Errorf("%w: expected token, got %s", protocol.ErrProtocol, msg.MessageType())
		}
		if err := crypto.ValidatePublicKey(token.Key); err != nil {
			return err
		}
		r.permanentKey = copyBytes(token.Key)
		return advance(&r.Handshake, ResponderHandshakeTokenReceived)

	case ResponderHandshakeTokenReceived:
		msg, err := s.receiveLocked(r, n, box, withPermanent)
		if err != nil {
			return err
		}
		key, ok := msg.(*messages.Key)
		if !ok {
			return fmt.Errorf("%w: expected key, got %s", protocol.ErrProtocol, msg.MessageType())
		}
		if err := crypto.ValidatePublicKey(key.Key); err != nil {
			return err
		}
		r.sessionKey = copyBytes(key.Key)
		if err := advance(&r.Handshake, ResponderHandshakeKeyReceived); err != nil {
			return err
		}
		if err := s.sendLocked(r, &messages.Key{Key: r.ours.PublicKey()}, withPermanent); err != nil {
			return err
		}
		return advance(&r.Handshake, ResponderHandshakeKeySent)

	case ResponderHandshakeKeySent:
		msg, err := s.receiveLocked(r, n, box, withSession)
		if err != nil {
			return err
		}
		auth, ok := msg.(*messages.Auth)
		if !ok {
			return fmt.Errorf("%w: expected auth, got %s", protocol.ErrProtocol, msg.MessageType())
		}
		if !bytes.Equal(auth.YourCookie, r.cookies.Ours().Bytes()) {
			return fmt.Errorf("%w: auth repeats the wrong cookie", protocol.ErrProtocol)
		}
		if auth.Task != "" || len(auth.Tasks) == 0 {
			return fmt.Errorf("%w: responder auth must list tasks and not choose one", protocol.ErrProtocol)
		}
		if err := advance(&r.Handshake, ResponderHandshakeAuthReceived); err != nil {
			return err
		}
		return s.chooseResponder(r, auth)
	}
	return fmt.Errorf("%w: unexpected frame in responder handshake state %s", protocol.ErrProtocol, r.Handshake)
}

// chooseResponder negotiates the task with an authenticated responder,
// answers with our auth message and drops every other responder.
func (s *Signaling) chooseResponder(r *Responder, auth *messages.Auth) error {
	task := tasks.ChooseCommonTask(s.tasks, auth.Tasks)
	if task == nil {
		s.log("Signaling.chooseResponder").WithFields(logrus.Fields{
			"ours":   s.taskNames,
			"theirs": auth.Tasks,
		}).Warn("No shared task")
		if err := s.sendLocked(r, &messages.Close{Reason: int(protocol.CloseNoSharedTask)}, withSession); err != nil {
			s.log("Signaling.chooseResponder").WithField("error", err.Error()).Debug("Could not send close message")
		}
		s.closeLocked(protocol.CloseNoSharedTask, fmt.Errorf("%w: responder offered %v", protocol.ErrNoSharedTask, auth.Tasks), 0)
		return nil
	}

	if err := task.Init(taskChannel{s}, auth.Data[task.Name()]); err != nil {
		return fmt.Errorf("init task %s: %w", task.Name(), err)
	}
	reply := &messages.Auth{
		YourCookie: theirCookie(r),
		Task:       task.Name(),
		Data:       map[string]map[string]interface{}{task.Name(): task.Data()},
	}
	if err := s.sendLocked(r, reply, withSession); err != nil {
		return err
	}
	if err := advance(&r.Handshake, ResponderHandshakeAuthSent); err != nil {
		return err
	}

	s.task = task
	s.peer = r
	for id, other := range s.responders {
		if id == r.id {
			continue
		}
		if err := s.dropResponderLocked(other, protocol.CloseDroppedByInitiator); err != nil {
			return err
		}
	}
	s.openLocked()
	return nil
}

// taskChannel lets the negotiated task send through the session.
type taskChannel struct {
	s *Signaling
}

func (c taskChannel) SendTaskMessage(msg map[string]interface{}) error {
	return c.s.SendTaskMessage(msg)
}

func (s *Signaling) handleDisconnected(id uint8) error {
	if s.role == RoleInitiator {
		if !protocol.IsResponderID(id) {
			return fmt.Errorf("%w: disconnected for %#02x", protocol.ErrProtocol, id)
		}
		s.emit(Event{Kind: EventPeerDisconnected, PeerID: id})
		if s.state != StateOpen {
			s.removeResponder(id)
		}
		return nil
	}

	if id != protocol.IDInitiator {
		return fmt.Errorf("%w: disconnected for %#02x", protocol.ErrProtocol, id)
	}
	s.emit(Event{Kind: EventPeerDisconnected, PeerID: id})
	if s.state == StateOpen {
		return nil
	}
	return s.resetInitiator(false)
}
