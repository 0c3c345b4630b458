package signaling

import (
	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/nonce"
	"github.com/opd-ai/saltyrtc/protocol"
)

// Peer is one counterparty of a session: the relay (*Server), the
// initiator (*Initiator, seen by a responder) or a responder (*Responder,
// seen by the initiator). The set is closed.
type Peer interface {
	// ID is the peer's address.
	ID() uint8
	// PermanentKey is the peer's long-term public key, nil until known.
	PermanentKey() []byte
	// SessionKey is the peer's ephemeral public key, nil until exchanged.
	SessionKey() []byte
	// Cookies holds our cookie towards the peer and the peer's cookie.
	Cookies() *nonce.CookiePair
	// CSN holds both combined sequence numbers of the link.
	CSN() *nonce.CombinedSequencePair

	sealed()
}

type peer struct {
	id           uint8
	permanentKey []byte
	sessionKey   []byte
	cookies      *nonce.CookiePair
	csn          *nonce.CombinedSequencePair
}

func newPeer(id uint8, permanentKey []byte) (peer, error) {
	cookies, err := nonce.NewCookiePair()
	if err != nil {
		return peer{}, err
	}
	csn, err := nonce.NewCombinedSequencePair()
	if err != nil {
		return peer{}, err
	}
	return peer{id: id, permanentKey: permanentKey, cookies: cookies, csn: csn}, nil
}

func (p *peer) ID() uint8                        { return p.id }
func (p *peer) PermanentKey() []byte             { return p.permanentKey }
func (p *peer) SessionKey() []byte               { return p.sessionKey }
func (p *peer) Cookies() *nonce.CookiePair       { return p.cookies }
func (p *peer) CSN() *nonce.CombinedSequencePair { return p.csn }

// Server is the relay hop. Its session key is learned from server-hello.
type Server struct {
	peer
	Handshake ServerHandshakeState
}

func newServer() (*Server, error) {
	p, err := newPeer(protocol.IDServer, nil)
	if err != nil {
		return nil, err
	}
	return &Server{peer: p}, nil
}

func (*Server) sealed() {}

// Initiator is the initiator as tracked by a responder session.
type Initiator struct {
	peer
	Handshake InitiatorHandshakeState
	Connected bool

	// ours is our session key pair towards the initiator.
	ours *crypto.KeyStore
}

func newInitiator(permanentKey []byte) (*Initiator, error) {
	p, err := newPeer(protocol.IDInitiator, permanentKey)
	if err != nil {
		return nil, err
	}
	ours, err := crypto.NewKeyStore()
	if err != nil {
		return nil, err
	}
	return &Initiator{peer: p, ours: ours}, nil
}

func (*Initiator) sealed() {}

// Responder is one responder as tracked by the initiator. Every responder
// has its own keys, cookies and sequence numbers.
type Responder struct {
	peer
	Handshake ResponderHandshakeState

	ours *crypto.KeyStore
}

func newResponder(id uint8) (*Responder, error) {
	p, err := newPeer(id, nil)
	if err != nil {
		return nil, err
	}
	ours, err := crypto.NewKeyStore()
	if err != nil {
		return nil, err
	}
	return &Responder{peer: p, ours: ours}, nil
}

func (*Responder) sealed() {}

// sessionKeys returns our session key store towards p, or nil for the
// relay.
func sessionKeys(p Peer) *crypto.KeyStore {
	switch v := p.(type) {
	case *Initiator:
		return v.ours
	case *Responder:
		return v.ours
	case *Server:
		return nil
	}
	return nil
}

// closePeer wipes the session secret held for p.
func closePeer(p Peer) {
	if ks := sessionKeys(p); ks != nil {
		ks.Close()
	}
}
