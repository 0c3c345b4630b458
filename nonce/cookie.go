package nonce

import (
	"crypto/rand"
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
)

// Cookie is the random, per-link prefix of every nonce.
type Cookie [protocol.CookieBytes]byte

// NewCookie returns a random cookie.
func NewCookie() (Cookie, error) {
	var c Cookie
	if _, err := rand.Read(c[:]); err != nil {
		return Cookie{}, fmt.Errorf("generate cookie: %w", err)
	}
	return c, nil
}

// CookieFromBytes copies exactly 16 bytes into a cookie.
func CookieFromBytes(b []byte) (Cookie, error) {
	var c Cookie
	if len(b) != protocol.CookieBytes {
		return c, fmt.Errorf("%w: cookie must be %d bytes long, got %d", protocol.ErrArgument, protocol.CookieBytes, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// Bytes returns the cookie as a slice.
func (c Cookie) Bytes() []byte {
	out := make([]byte, protocol.CookieBytes)
	copy(out, c[:])
	return out
}

// CookiePair holds our cookie for a link and, once seen, the peer's.
type CookiePair struct {
	ours      Cookie
	theirs    Cookie
	hasTheirs bool
}

// NewCookiePair creates a pair with a fresh random cookie of ours.
func NewCookiePair() (*CookiePair, error) {
	ours, err := NewCookie()
	if err != nil {
		return nil, err
	}
	return &CookiePair{ours: ours}, nil
}

// NewCookiePairFrom creates a pair around an existing cookie of ours.
func NewCookiePairFrom(ours Cookie) *CookiePair {
	return &CookiePair{ours: ours}
}

// Ours returns our cookie.
func (cp *CookiePair) Ours() Cookie {
	return cp.ours
}

// Theirs returns the peer cookie and whether it has been set.
func (cp *CookiePair) Theirs() (Cookie, bool) {
	return cp.theirs, cp.hasTheirs
}

// HasTheirs reports whether the peer cookie is known.
func (cp *CookiePair) HasTheirs() bool {
	return cp.hasTheirs
}

// CheckTheirs validates a received cookie without storing it. The peer must
// never reuse our cookie and must never change its own.
func (cp *CookiePair) CheckTheirs(c Cookie) error {
	if c == cp.ours {
		return fmt.Errorf("%w: peer cookie equals our cookie", protocol.ErrProtocol)
	}
	if cp.hasTheirs && c != cp.theirs {
		return fmt.Errorf("%w: peer changed its cookie", protocol.ErrProtocol)
	}
	return nil
}

// SetTheirs validates and stores a received cookie.
func (cp *CookiePair) SetTheirs(c Cookie) error {
	if err := cp.CheckTheirs(c); err != nil {
		return err
	}
	cp.theirs = c
	cp.hasTheirs = true
	return nil
}
