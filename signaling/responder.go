package signaling

import (
	"bytes"
	"fmt"

	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/messages"
	"github.com/opd-ai/saltyrtc/nonce"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/tasks"
)

func (s *Signaling) responderServerAuth(auth *messages.ServerAuth) error {
	if auth.InitiatorConnected == nil {
		return fmt.Errorf("%w: server-auth for a responder lacks initiator_connected", protocol.ErrProtocol)
	}
	if len(auth.Responders) > 0 {
		return fmt.Errorf("%w: server-auth for a responder lists responders", protocol.ErrProtocol)
	}
	if !*auth.InitiatorConnected {
		s.log("Signaling.responderServerAuth").Debug("Waiting for the initiator")
		return nil
	}
	s.initiator.Connected = true
	return s.startInitiatorHandshake()
}

// handleNewInitiator restarts the peer handshake with a (re)connected
// initiator. An open session keeps its peer link.
func (s *Signaling) handleNewInitiator() error {
	if s.state == StateOpen {
		s.log("Signaling.handleNewInitiator").Warn("Ignoring new initiator on an open session")
		return nil
	}
	return s.resetInitiator(true)
}

// resetInitiator discards all handshake state with the initiator. When
// connected is set the handshake starts over right away.
func (s *Signaling) resetInitiator(connected bool) error {
	old := s.initiator
	fresh, err := newInitiator(old.PermanentKey())
	if err != nil {
		return err
	}
	closePeer(old)
	s.initiator = fresh
	s.initiator.Connected = connected
	if !connected {
		return nil
	}
	return s.startInitiatorHandshake()
}

// startInitiatorHandshake sends token (unless trusted) and key.
func (s *Signaling) startInitiatorHandshake() error {
	i := s.initiator
	if !s.skipToken {
		if err := s.sendLocked(i, &messages.Token{Key: s.keys.PublicKey()}, withToken); err != nil {
			return err
		}
		if err := advance(&i.Handshake, InitiatorHandshakeTokenSent); err != nil {
			return err
		}
	}
	if err := s.sendLocked(i, &messages.Key{Key: i.ours.PublicKey()}, withPermanent); err != nil {
		return err
	}
	return advance(&i.Handshake, InitiatorHandshakeKeySent)
}

func (s *Signaling) handleInitiatorFrame(n *nonce.Nonce, box *crypto.Box) error {
	i := s.initiator
	if s.state == StateOpen {
		return s.handleOpenFrame(i, n, box)
	}

	switch i.Handshake {
	case InitiatorHandshakeKeySent:
		msg, err := s.receiveLocked(i, n, box, withPermanent)
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
		i.sessionKey = copyBytes(key.Key)
		if err := advance(&i.Handshake, InitiatorHandshakeKeyReceived); err != nil {
			return err
		}

		auth := &messages.Auth{
			YourCookie: theirCookie(i),
			Tasks:      s.taskNames,
			Data:       taskData(s.tasks),
		}
		if err := s.sendLocked(i, auth, withSession); err != nil {
			return err
		}
		return advance(&i.Handshake, InitiatorHandshakeAuthSent)

	case InitiatorHandshakeAuthSent:
		msg, err := s.receiveLocked(i, n, box, withSession)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *messages.Close:
			code := protocol.CloseCode(m.Reason)
			s.log("Signaling.handleInitiatorFrame").WithField("reason", code.String()).Warn("Initiator closed during handshake")
			var cause error
			if code == protocol.CloseNoSharedTask {
				cause = fmt.Errorf("%w: initiator rejected %v", protocol.ErrNoSharedTask, s.taskNames)
			}
			s.closeLocked(code, cause, 0)
			return nil
		case *messages.Auth:
			return s.acceptInitiatorAuth(m)
		}
		return fmt.Errorf("%w: expected auth, got %s", protocol.ErrProtocol, msg.MessageType())
	}
	return fmt.Errorf("%w: unexpected frame in initiator handshake state %s", protocol.ErrProtocol, i.Handshake)
}

// acceptInitiatorAuth takes the task the initiator chose and opens the
// session.
func (s *Signaling) acceptInitiatorAuth(auth *messages.Auth) error {
	i := s.initiator
	if !bytes.Equal(auth.YourCookie, i.cookies.Ours().Bytes()) {
		return fmt.Errorf("%w: auth repeats the wrong cookie", protocol.ErrProtocol)
	}
	if auth.Task == "" || len(auth.Tasks) > 0 {
		return fmt.Errorf("%w: initiator auth must choose exactly one task", protocol.ErrProtocol)
	}
	task := tasks.Find(s.tasks, auth.Task)
	if task == nil {
		return fmt.Errorf("%w: initiator chose unoffered task %q", protocol.ErrProtocol, auth.Task)
	}
	if err := task.Init(taskChannel{s}, auth.Data[auth.Task]); err != nil {
		return fmt.Errorf("init task %s: %w", task.Name(), err)
	}
	if err := advance(&i.Handshake, InitiatorHandshakeAuthReceived); err != nil {
		return err
	}

	s.task = task
	s.peer = i
	s.openLocked()
	return nil
}

func taskData(ts []tasks.Task) map[string]map[string]interface{} {
	data := make(map[string]map[string]interface{}, len(ts))
	for _, t := range ts {
		data[t.Name()] = t.Data()
	}
	return data
}
