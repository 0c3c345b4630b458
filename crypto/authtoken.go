package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/opd-ai/saltyrtc/protocol"
	"golang.org/x/crypto/nacl/secretbox"
)

// AuthToken is the one-time secret key the initiator hands to the responder
// out of band. The responder uses it to seal its permanent key in the token
// message.
type AuthToken struct {
	mu     sync.RWMutex
	key    [protocol.AuthTokenBytes]byte
	closed bool
}

// NewAuthToken generates a random token.
func NewAuthToken() (*AuthToken, error) {
	t := &AuthToken{}
	if _, err := rand.Read(t.key[:]); err != nil {
		return nil, fmt.Errorf("generate auth token: %w", err)
	}
	return t, nil
}

// NewAuthTokenFromBytes wraps an existing 32-byte token.
func NewAuthTokenFromBytes(b []byte) (*AuthToken, error) {
	if len(b) != protocol.AuthTokenBytes {
		return nil, fmt.Errorf("%w: auth token must be %d bytes, got %d", protocol.ErrInvalidKey, protocol.AuthTokenBytes, len(b))
	}
	t := &AuthToken{}
	copy(t.key[:], b)
	return t, nil
}

// NewAuthTokenFromHex wraps a hex encoded token.
func NewAuthTokenFromHex(s string) (*AuthToken, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: auth token is not valid hex: %v", protocol.ErrInvalidKey, err)
	}
	defer ZeroBytes(b)
	return NewAuthTokenFromBytes(b)
}

// Bytes returns a copy of the token.
func (t *AuthToken) Bytes() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]byte, protocol.AuthTokenBytes)
	copy(out, t.key[:])
	return out
}

// Hex returns the token as lowercase hex.
func (t *AuthToken) Hex() string {
	b := t.Bytes()
	defer ZeroBytes(b)
	return hex.EncodeToString(b)
}

// Encrypt seals data with the token as secretbox key.
func (t *AuthToken) Encrypt(data, nonce []byte) (*Box, error) {
	b, err := NewBox(nonce, nil)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, fmt.Errorf("%w: auth token is closed", protocol.ErrCrypto)
	}
	b.Data = secretbox.Seal(nil, data, &b.Nonce, &t.key)
	return b, nil
}

// Decrypt opens a secretbox sealed with the token.
func (t *AuthToken) Decrypt(b *Box) ([]byte, error) {
	if b == nil || len(b.Data) < secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", protocol.ErrCrypto)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, fmt.Errorf("%w: auth token is closed", protocol.ErrCrypto)
	}
	plaintext, ok := secretbox.Open(nil, b.Data, &b.Nonce, &t.key)
	if !ok {
		return nil, fmt.Errorf("%w: could not decrypt token box", protocol.ErrCrypto)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Close wipes the token.
func (t *AuthToken) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	ZeroBytes(t.key[:])
	t.closed = true
}
