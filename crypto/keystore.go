package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/opd-ai/saltyrtc/protocol"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeyStore owns one Curve25519 key pair and performs NaCl box operations
// against arbitrary peer public keys. The pair never changes after
// construction. Encrypt and Decrypt are safe for concurrent use.
type KeyStore struct {
	mu        sync.RWMutex
	publicKey [protocol.KeyBytes]byte
	secretKey [protocol.KeyBytes]byte
	closed    bool
}

// NewKeyStore generates a fresh key pair.
func NewKeyStore() (*KeyStore, error) {
	pk, sk, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	ks := &KeyStore{publicKey: *pk, secretKey: *sk}
	ZeroBytes(sk[:])

	NewLogger("NewKeyStore").
		WithFields(PublicKeyPreview(ks.publicKey[:], "public_key")).
		Debug("Generated new key pair")
	return ks, nil
}

// NewKeyStoreFromSecretKey derives the public key from an existing secret key.
func NewKeyStoreFromSecretKey(secretKey []byte) (*KeyStore, error) {
	if len(secretKey) != protocol.KeyBytes {
		return nil, fmt.Errorf("%w: secret key must be %d bytes, got %d", protocol.ErrInvalidKey, protocol.KeyBytes, len(secretKey))
	}
	if isZero(secretKey) {
		return nil, fmt.Errorf("%w: secret key is all zeros", protocol.ErrInvalidKey)
	}

	pk, err := DerivePublicKey(secretKey)
	if err != nil {
		return nil, err
	}

	ks := &KeyStore{}
	copy(ks.secretKey[:], secretKey)
	copy(ks.publicKey[:], pk)

	NewLogger("NewKeyStoreFromSecretKey").
		WithFields(PublicKeyPreview(pk, "public_key")).
		Debug("Derived public key from secret key")
	return ks, nil
}

// NewKeyStoreFromSecretKeyHex is NewKeyStoreFromSecretKey for hex input.
func NewKeyStoreFromSecretKeyHex(secretKeyHex string) (*KeyStore, error) {
	sk, err := decodeKeyHex(secretKeyHex, "secret key")
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(sk)
	return NewKeyStoreFromSecretKey(sk)
}

// NewKeyStoreFromKeyPair uses an explicit key pair. The public key must be
// the derivative of the secret key.
func NewKeyStoreFromKeyPair(publicKey, secretKey []byte) (*KeyStore, error) {
	if err := ValidatePublicKey(publicKey); err != nil {
		return nil, err
	}
	ks, err := NewKeyStoreFromSecretKey(secretKey)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(ks.publicKey[:], publicKey) {
		ks.Close()
		return nil, fmt.Errorf("%w: public key does not match secret key", protocol.ErrInvalidKey)
	}
	return ks, nil
}

// NewKeyStoreFromKeyPairHex is NewKeyStoreFromKeyPair for hex input.
func NewKeyStoreFromKeyPairHex(publicKeyHex, secretKeyHex string) (*KeyStore, error) {
	pk, err := decodeKeyHex(publicKeyHex, "public key")
	if err != nil {
		return nil, err
	}
	sk, err := decodeKeyHex(secretKeyHex, "secret key")
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(sk)
	return NewKeyStoreFromKeyPair(pk, sk)
}

// DerivePublicKey computes the Curve25519 public key for a secret key.
func DerivePublicKey(secretKey []byte) ([]byte, error) {
	if len(secretKey) != protocol.KeyBytes {
		return nil, fmt.Errorf("%w: secret key must be %d bytes, got %d", protocol.ErrInvalidKey, protocol.KeyBytes, len(secretKey))
	}
	pk, err := curve25519.X25519(secretKey, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidKey, err)
	}
	return pk, nil
}

// ValidatePublicKey checks length and rejects the all-zero key.
func ValidatePublicKey(key []byte) error {
	if len(key) != protocol.KeyBytes {
		return fmt.Errorf("%w: public key must be %d bytes, got %d", protocol.ErrInvalidKey, protocol.KeyBytes, len(key))
	}
	if isZero(key) {
		return fmt.Errorf("%w: public key is all zeros", protocol.ErrInvalidKey)
	}
	return nil
}

// PublicKey returns a copy of the public key.
func (ks *KeyStore) PublicKey() []byte {
	out := make([]byte, protocol.KeyBytes)
	copy(out, ks.publicKey[:])
	return out
}

// PublicKeyHex returns the public key as lowercase hex.
func (ks *KeyStore) PublicKeyHex() string {
	return hex.EncodeToString(ks.publicKey[:])
}

// SecretKey returns a copy of the secret key. Callers should wipe it.
func (ks *KeyStore) SecretKey() []byte {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]byte, protocol.KeyBytes)
	copy(out, ks.secretKey[:])
	return out
}

// Encrypt seals data for the owner of peerPublicKey using nonce.
func (ks *KeyStore) Encrypt(data, nonce, peerPublicKey []byte) (*Box, error) {
	b, err := NewBox(nonce, nil)
	if err != nil {
		return nil, err
	}
	peer, err := ks.checkPeer(peerPublicKey)
	if err != nil {
		return nil, err
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.closed {
		return nil, fmt.Errorf("%w: key store is closed", protocol.ErrCrypto)
	}

	b.Data = box.Seal(nil, data, &b.Nonce, peer, &ks.secretKey)
	if len(b.Data) != len(data)+box.Overhead {
		return nil, fmt.Errorf("%w: encryption produced no output", protocol.ErrCrypto)
	}
	return b, nil
}

// Decrypt opens a box sealed by the owner of peerPublicKey. Either the
// complete authenticated plaintext is returned, or an error.
func (ks *KeyStore) Decrypt(b *Box, peerPublicKey []byte) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil box", protocol.ErrCrypto)
	}
	peer, err := ks.checkPeer(peerPublicKey)
	if err != nil {
		return nil, err
	}
	if len(b.Data) < box.Overhead {
		return nil, fmt.Errorf("%w: ciphertext of %d bytes is too short", protocol.ErrCrypto, len(b.Data))
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.closed {
		return nil, fmt.Errorf("%w: key store is closed", protocol.ErrCrypto)
	}

	plaintext, ok := box.Open(nil, b.Data, &b.Nonce, peer, &ks.secretKey)
	if !ok {
		NewLogger("KeyStore.Decrypt").
			WithFields(PublicKeyPreview(peerPublicKey, "peer_key")).
			WithField("ciphertext_size", len(b.Data)).
			Debug("Box authentication failed")
		return nil, fmt.Errorf("%w: could not decrypt box", protocol.ErrCrypto)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// checkPeer validates the peer key and rejects low-order points, which
// would make the shared key predictable.
func (ks *KeyStore) checkPeer(peerPublicKey []byte) (*[protocol.KeyBytes]byte, error) {
	if err := ValidatePublicKey(peerPublicKey); err != nil {
		return nil, err
	}

	ks.mu.RLock()
	shared, err := curve25519.X25519(ks.secretKey[:], peerPublicKey)
	ks.mu.RUnlock()
	if err != nil {
		NewLogger("KeyStore.checkPeer").
			WithFields(PublicKeyPreview(peerPublicKey, "peer_key")).
			WithError(err, "x25519").
			Warn("Rejected low-order peer key")
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidKey, err)
	}
	ZeroBytes(shared)

	var peer [protocol.KeyBytes]byte
	copy(peer[:], peerPublicKey)
	return &peer, nil
}

// Close wipes the secret key. The store must not be used afterwards.
func (ks *KeyStore) Close() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.closed {
		return
	}
	ZeroBytes(ks.secretKey[:])
	ks.closed = true
}

func decodeKeyHex(s, what string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid hex: %v", protocol.ErrInvalidKey, what, err)
	}
	if len(b) != protocol.KeyBytes {
		return nil, fmt.Errorf("%w: %s must be %d bytes, got %d", protocol.ErrInvalidKey, what, protocol.KeyBytes, len(b))
	}
	return b, nil
}
