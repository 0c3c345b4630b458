package signaling

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/limits"
	"github.com/opd-ai/saltyrtc/messages"
	"github.com/opd-ai/saltyrtc/nonce"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/tasks"
	"github.com/opd-ai/saltyrtc/transport"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

var (
	// ErrClosed is returned when using a session that already closed.
	ErrClosed = errors.New("signaling: session closed")
	// ErrNotOpen is returned when sending before the peer handshake is done.
	ErrNotOpen = errors.New("signaling: session not open")
)

// Role is the part a session plays in the protocol.
type Role int

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// encryption selects how a message to a peer is sealed.
type encryption int

const (
	plain encryption = iota
	withToken
	withPermanent
	withSession
)

// Signaling runs one SaltyRTC session, either as initiator or responder.
//
// A single goroutine reads frames from the relay and processes them in
// receipt order. All state, handshake and sequence number mutations happen
// under mu, which is also held while a frame is written so that frames
// leave in sequence order. Task callbacks run after mu is released.
type Signaling struct {
	role      Role
	dialer    transport.Dialer
	keys      *crypto.KeyStore
	authToken *crypto.AuthToken
	pathHex   string
	serverKey []byte
	tasks     []tasks.Task
	taskNames []string
	ping      uint32

	// trustedKey is the responder key an initiator trusts, skipToken the
	// responder-side counterpart.
	trustedKey []byte
	skipToken  bool

	events      chan Event
	serverReady chan struct{}
	opened      chan struct{}
	done        chan struct{}

	mu         sync.Mutex
	state      State
	closeErr   *CloseError
	id         uint8
	conn       transport.Conn
	cancelRead context.CancelFunc
	server     *Server
	initiator  *Initiator
	responders map[uint8]*Responder
	peer       Peer
	task       tasks.Task
	pending    []func()
}

func newSignaling(role Role, opts *Options) (*Signaling, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: nil options", protocol.ErrArgument)
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("%w: a dialer is required", protocol.ErrArgument)
	}
	if err := tasks.Validate(opts.Tasks); err != nil {
		return nil, err
	}
	names, err := tasks.TaskNames(opts.Tasks)
	if err != nil {
		return nil, err
	}
	if opts.ServerKey != nil {
		if err := crypto.ValidatePublicKey(opts.ServerKey); err != nil {
			return nil, err
		}
	}

	keys := opts.Keys
	if keys == nil {
		if keys, err = crypto.NewKeyStore(); err != nil {
			return nil, err
		}
	}
	server, err := newServer()
	if err != nil {
		return nil, err
	}

	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	return &Signaling{
		role:        role,
		dialer:      opts.Dialer,
		keys:        keys,
		serverKey:   copyBytes(opts.ServerKey),
		tasks:       append([]tasks.Task(nil), opts.Tasks...),
		taskNames:   names,
		ping:        opts.PingInterval,
		events:      make(chan Event, buffer),
		serverReady: make(chan struct{}),
		opened:      make(chan struct{}),
		done:        make(chan struct{}),
		server:      server,
	}, nil
}

// NewInitiator creates an initiator session. The relay path is derived
// from our own permanent key.
func NewInitiator(opts *Options) (*Signaling, error) {
	s, err := newSignaling(RoleInitiator, opts)
	if err != nil {
		return nil, err
	}
	if opts.PeerPermanentKey != nil {
		if err := crypto.ValidatePublicKey(opts.PeerPermanentKey); err != nil {
			return nil, err
		}
		s.trustedKey = copyBytes(opts.PeerPermanentKey)
	}
	s.authToken = opts.AuthToken
	if s.authToken == nil {
		if s.authToken, err = crypto.NewAuthToken(); err != nil {
			return nil, err
		}
	}
	s.responders = make(map[uint8]*Responder)
	s.pathHex = s.keys.PublicKeyHex()
	return s, nil
}

// NewResponder creates a responder session for the initiator identified
// by opts.PeerPermanentKey.
func NewResponder(opts *Options) (*Signaling, error) {
	s, err := newSignaling(RoleResponder, opts)
	if err != nil {
		return nil, err
	}
	if err := crypto.ValidatePublicKey(opts.PeerPermanentKey); err != nil {
		return nil, fmt.Errorf("initiator key: %w", err)
	}
	if opts.AuthToken == nil && !opts.Trusted {
		return nil, fmt.Errorf("%w: an auth token is required unless the initiator trusts us", protocol.ErrArgument)
	}
	s.authToken = opts.AuthToken
	s.skipToken = opts.Trusted
	if s.initiator, err = newInitiator(copyBytes(opts.PeerPermanentKey)); err != nil {
		return nil, err
	}
	s.pathHex = hex.EncodeToString(opts.PeerPermanentKey)
	return s, nil
}

// Connect dials the relay and waits until the server handshake is done.
// If ctx ends first, the session closes with protocol.CloseTimeout.
func (s *Signaling) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNew {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot connect in state %s", protocol.ErrProtocol, state)
	}
	s.setState(StateServerHandshake)
	s.mu.Unlock()

	s.log("Signaling.Connect").WithField("path", s.pathHex[:16]).Debug("Connecting to relay")
	conn, err := s.dialer.Dial(ctx, s.pathHex)
	if err != nil {
		s.abort(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateServerHandshake {
		s.mu.Unlock()
		conn.Close(protocol.CloseNormal)
		return s.Err()
	}
	readCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancelRead = cancel
	s.mu.Unlock()

	go s.readLoop(readCtx, conn)

	select {
	case <-s.serverReady:
		return nil
	case <-s.done:
		select {
		case <-s.serverReady:
			return nil
		default:
			return s.Err()
		}
	case <-ctx.Done():
		s.abort(ctx.Err())
		return ctx.Err()
	}
}

// WaitOpen blocks until the session is open, closed or ctx ends.
func (s *Signaling) WaitOpen(ctx context.Context) error {
	select {
	case <-s.opened:
		return nil
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the session. An open peer link is told with a close
// message carrying protocol.CloseGoingAway; the session itself reports
// protocol.CloseNormal. Calling Disconnect again, or before Connect, is a
// no-op apart from moving a new session to closed.
func (s *Signaling) Disconnect() {
	s.mu.Lock()
	s.closeLocked(protocol.CloseNormal, nil, protocol.CloseGoingAway)
	pending := s.takePending()
	s.mu.Unlock()
	runAll(pending)
}

// State returns the current signaling state.
func (s *Signaling) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CloseCode returns the close code once the session is closed, else 0.
func (s *Signaling) CloseCode() protocol.CloseCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		return 0
	}
	return s.closeErr.Code
}

// Err returns a *CloseError once the session is closed, else nil.
func (s *Signaling) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		return nil
	}
	return s.closeErr
}

// Done is closed when the session reaches StateClosed.
func (s *Signaling) Done() <-chan struct{} {
	return s.done
}

// Events returns the event channel.
func (s *Signaling) Events() <-chan Event {
	return s.events
}

// Role returns the session role.
func (s *Signaling) Role() Role {
	return s.role
}

// PublicPermanentKey returns our permanent public key.
func (s *Signaling) PublicPermanentKey() []byte {
	return s.keys.PublicKey()
}

// AuthToken returns a copy of the auth token, or nil if there is none.
func (s *Signaling) AuthToken() []byte {
	if s.authToken == nil {
		return nil
	}
	return s.authToken.Bytes()
}

// PeerPermanentKey returns the peer's permanent key: the initiator's for a
// responder, the chosen responder's for an initiator (nil until chosen).
func (s *Signaling) PeerPermanentKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role == RoleResponder {
		return copyBytes(s.initiator.PermanentKey())
	}
	if s.peer == nil {
		return nil
	}
	return copyBytes(s.peer.PermanentKey())
}

// Task returns the negotiated task, or nil before the session is open.
func (s *Signaling) Task() tasks.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// SendApplicationMessage sends an application message to the peer.
func (s *Signaling) SendApplicationMessage(data interface{}) error {
	return s.sendOpen(&messages.Application{Data: data})
}

// SendTaskMessage sends a message of a type the negotiated task supports.
func (s *Signaling) SendTaskMessage(msg map[string]interface{}) error {
	msgType, _ := msg["type"].(string)
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()
	if !tasks.Supports(task, msgType) {
		return fmt.Errorf("%w: task does not support message type %q", protocol.ErrArgument, msgType)
	}
	return s.sendOpen(&messages.TaskMessage{Fields: msg})
}

func (s *Signaling) sendOpen(msg messages.Message) error {
	s.mu.Lock()
	var err error
	switch s.state {
	case StateOpen:
		err = s.sendLocked(s.peer, msg, withSession)
		if errors.Is(err, protocol.ErrOverflow) {
			s.failLocked(err)
		}
	case StateClosing, StateClosed:
		err = ErrClosed
	default:
		err = ErrNotOpen
	}
	pending := s.takePending()
	s.mu.Unlock()
	runAll(pending)
	return err
}

func (s *Signaling) readLoop(ctx context.Context, conn transport.Conn) {
	for {
		frame, readErr := conn.ReadFrame(ctx)

		s.mu.Lock()
		if s.state == StateClosing || s.state == StateClosed {
			s.mu.Unlock()
			return
		}
		if readErr != nil {
			s.closeLocked(transportCloseCode(readErr), readErr, 0)
		} else if err := s.handleFrame(frame); err != nil {
			s.failLocked(err)
		}
		closed := s.state == StateClosed
		pending := s.takePending()
		s.mu.Unlock()

		runAll(pending)
		if closed {
			return
		}
	}
}

func (s *Signaling) handleFrame(frame []byte) error {
	if err := limits.ValidateFrame(frame); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
	}
	box, err := crypto.ParseBox(frame)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
	}
	n, err := nonce.Parse(box.Nonce[:])
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrProtocol, err)
	}

	switch s.state {
	case StateServerHandshake:
		return s.handleServerHandshake(n, box)
	case StatePeerHandshake, StateOpen:
		if n.Destination() != s.id {
			return fmt.Errorf("%w: frame addressed to %#02x, we are %#02x", protocol.ErrProtocol, n.Destination(), s.id)
		}
		if n.Source() == protocol.IDServer {
			return s.handleServerMessage(n, box)
		}
		if s.role == RoleInitiator {
			return s.handleResponderFrame(n, box)
		}
		return s.handleInitiatorFrame(n, box)
	}
	return fmt.Errorf("%w: frame received in state %s", protocol.ErrProtocol, s.state)
}

// handleOpenFrame processes a message from the peer once the session is
// open.
func (s *Signaling) handleOpenFrame(p Peer, n *nonce.Nonce, box *crypto.Box) error {
	msg, err := s.receiveLocked(p, n, box, withSession)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *messages.Close:
		code := protocol.CloseCode(m.Reason)
		s.log("Signaling.handleOpenFrame").WithField("reason", code.String()).Info("Peer closed the connection")
		s.closeLocked(code, nil, 0)
	case *messages.Application:
		s.emit(Event{Kind: EventApplication, PeerID: p.ID(), Data: m.Data})
	case *messages.TaskMessage:
		if !tasks.Supports(s.task, m.MessageType()) {
			return fmt.Errorf("%w: task does not handle %q messages", protocol.ErrProtocol, m.MessageType())
		}
		task, fields := s.task, m.Fields
		s.deferCall(func() {
			if err := task.OnTaskMessage(fields); err != nil {
				s.log("Signaling.handleOpenFrame").WithField("error", err.Error()).Warn("Task rejected message")
			}
		})
	default:
		return fmt.Errorf("%w: unexpected %s message in state open", protocol.ErrProtocol, msg.MessageType())
	}
	return nil
}

// checkNonce validates source, cookie and sequence number of a frame from p
// without committing anything.
func (s *Signaling) checkNonce(p Peer, n *nonce.Nonce) error {
	if n.Source() != p.ID() {
		return fmt.Errorf("%w: frame from %#02x, expected %#02x", protocol.ErrProtocol, n.Source(), p.ID())
	}
	if err := p.Cookies().CheckTheirs(n.Cookie()); err != nil {
		return err
	}
	return p.CSN().CheckTheirs(n.CombinedSequence())
}

// receiveLocked validates, decrypts and decodes a frame from p. The peer's
// cookie and sequence number are only committed once the message was
// authenticated and parsed.
func (s *Signaling) receiveLocked(p Peer, n *nonce.Nonce, box *crypto.Box, enc encryption) (messages.Message, error) {
	if err := s.checkNonce(p, n); err != nil {
		return nil, err
	}
	plaintext, err := s.open(p, enc, box)
	if err != nil {
		return nil, err
	}
	msg, err := messages.Decode(plaintext)
	if err != nil {
		return nil, err
	}
	if err := p.Cookies().SetTheirs(n.Cookie()); err != nil {
		return nil, err
	}
	if err := p.CSN().UpdateTheirs(n.CombinedSequence()); err != nil {
		return nil, err
	}
	s.trace("receive", p, msg)
	return msg, nil
}

// sendLocked encodes, seals and writes msg to p.
func (s *Signaling) sendLocked(p Peer, msg messages.Message, enc encryption) error {
	data, err := messages.Encode(msg)
	if err != nil {
		return err
	}
	if err := limits.ValidatePayload(data); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrArgument, err)
	}
	csn, err := p.CSN().Ours().Next()
	if err != nil {
		return err
	}
	n, err := nonce.FromCombinedSequence(p.Cookies().Ours(), s.id, p.ID(), csn)
	if err != nil {
		return err
	}
	frame, err := s.seal(p, enc, data, n.Bytes())
	if err != nil {
		return err
	}
	if s.conn == nil {
		return ErrClosed
	}

	s.trace("send", p, msg)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.conn.WriteFrame(ctx, frame)
}

// peerKey returns the public key the box for p is sealed against. The
// relay is addressed through its session key.
func peerKey(p Peer, enc encryption) []byte {
	if _, ok := p.(*Server); ok || enc == withSession {
		return p.SessionKey()
	}
	return p.PermanentKey()
}

func (s *Signaling) seal(p Peer, enc encryption, data, n []byte) ([]byte, error) {
	var box *crypto.Box
	var err error
	switch enc {
	case plain:
		return append(n, data...), nil
	case withToken:
		if s.authToken == nil {
			return nil, fmt.Errorf("%w: no auth token", protocol.ErrCrypto)
		}
		box, err = s.authToken.Encrypt(data, n)
	case withPermanent:
		box, err = s.keys.Encrypt(data, n, peerKey(p, enc))
	case withSession:
		box, err = sessionKeys(p).Encrypt(data, n, peerKey(p, enc))
	}
	if err != nil {
		return nil, err
	}
	return box.Bytes(), nil
}

func (s *Signaling) open(p Peer, enc encryption, box *crypto.Box) ([]byte, error) {
	switch enc {
	case plain:
		return box.Data, nil
	case withToken:
		if s.authToken == nil {
			return nil, fmt.Errorf("%w: no auth token", protocol.ErrCrypto)
		}
		return s.authToken.Decrypt(box)
	case withPermanent:
		return s.keys.Decrypt(box, peerKey(p, enc))
	case withSession:
		return sessionKeys(p).Decrypt(box, peerKey(p, enc))
	}
	return nil, fmt.Errorf("%w: unknown encryption %d", protocol.ErrCrypto, enc)
}

func (s *Signaling) setState(state State) {
	if s.state == state {
		return
	}
	s.log("Signaling.setState").WithFields(logrus.Fields{
		"from": s.state.String(),
		"to":   state.String(),
	}).Debug("Signaling state changed")
	s.state = state
	s.emit(Event{Kind: EventStateChanged, State: state})
}

// openLocked moves to StateOpen. The task learns about it, and waiters
// are released, after mu is released.
func (s *Signaling) openLocked() {
	s.setState(StateOpen)
	task, peerID := s.task, s.peer.ID()
	s.deferCall(func() {
		task.OnPeerHandshakeDone()
		close(s.opened)
		s.emit(Event{Kind: EventOpen, State: StateOpen, PeerID: peerID})
	})
	s.log("Signaling.openLocked").WithField("task", task.Name()).Info("Peer handshake done")
}

// failLocked closes the session because of err.
func (s *Signaling) failLocked(err error) {
	code := protocol.CloseCodeFor(err)
	s.log("Signaling.failLocked").WithFields(logrus.Fields{
		"error": err.Error(),
		"code":  code.String(),
	}).Warn("Closing session after error")
	s.emit(Event{Kind: EventError, Err: err, Code: code})

	var peerReason protocol.CloseCode
	if s.state == StateOpen {
		peerReason = code
	}
	s.closeLocked(code, err, peerReason)
}

// abort closes the session from outside the read loop.
func (s *Signaling) abort(err error) {
	s.mu.Lock()
	if s.state != StateClosing && s.state != StateClosed {
		code := transportCloseCode(err)
		s.emit(Event{Kind: EventError, Err: err, Code: code})
		s.closeLocked(code, err, 0)
	}
	pending := s.takePending()
	s.mu.Unlock()
	runAll(pending)
}

// closeLocked moves the session through closing to closed. peerReason,
// when non-zero and the session is open, is sent to the peer in a close
// message first.
func (s *Signaling) closeLocked(code protocol.CloseCode, cause error, peerReason protocol.CloseCode) {
	if s.state == StateClosing || s.state == StateClosed {
		return
	}
	wasOpen := s.state == StateOpen
	s.setState(StateClosing)

	if s.conn != nil {
		if wasOpen && peerReason != 0 {
			if err := s.sendLocked(s.peer, &messages.Close{Reason: int(peerReason)}, withSession); err != nil {
				s.log("Signaling.closeLocked").WithField("error", err.Error()).Debug("Could not send close message")
			}
		}
		s.conn.Close(code)
	}
	if s.cancelRead != nil {
		s.cancelRead()
	}

	for _, r := range s.responders {
		closePeer(r)
	}
	if s.initiator != nil {
		closePeer(s.initiator)
	}
	s.keys.Close()
	if s.authToken != nil {
		s.authToken.Close()
	}

	s.closeErr = &CloseError{Code: code, Cause: cause}
	s.setState(StateClosed)
	close(s.done)
	s.emit(Event{Kind: EventClosed, State: StateClosed, Code: code, Err: cause})
	s.log("Signaling.closeLocked").WithField("code", code.String()).Info("Session closed")

	if task := s.task; task != nil {
		s.deferCall(func() { task.Close(code) })
	}
}

func (s *Signaling) deferCall(fn func()) {
	s.pending = append(s.pending, fn)
}

func (s *Signaling) takePending() []func() {
	pending := s.pending
	s.pending = nil
	return pending
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// transportCloseCode maps a dial or read failure onto a close code. A
// close code sent by the relay is passed through.
func transportCloseCode(err error) protocol.CloseCode {
	if code, ok := transport.CloseCodeOf(err); ok {
		return code
	}
	return protocol.CloseCodeFor(err)
}

func (s *Signaling) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"role":     s.role.String(),
		"id":       s.id,
	})
}

// trace dumps a message at trace level. Messages never carry secret keys.
func (s *Signaling) trace(direction string, p Peer, msg messages.Message) {
	if !logrus.IsLevelEnabled(logrus.TraceLevel) {
		return
	}
	s.log("Signaling.trace").WithFields(logrus.Fields{
		"direction": direction,
		"peer":      p.ID(),
		"type":      msg.MessageType(),
	}).Trace(spew.Sdump(msg))
}

func theirCookie(p Peer) []byte {
	cookie, _ := p.Cookies().Theirs()
	return cookie.Bytes()
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
