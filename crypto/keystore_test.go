package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomNonce(t *testing.T) []byte {
	t.Helper()
	n := make([]byte, protocol.NonceBytes)
	_, err := rand.Read(n)
	require.NoError(t, err)
	return n
}

func assertDerived(t *testing.T, ks *KeyStore) {
	t.Helper()
	sk := ks.SecretKey()
	defer ZeroBytes(sk)
	pk, err := DerivePublicKey(sk)
	require.NoError(t, err)
	assert.Equal(t, pk, ks.PublicKey(), "public key must be the curve derivative of the secret key")
}

func TestNewKeyStore(t *testing.T) {
	ks, err := NewKeyStore()
	require.NoError(t, err)
	defer ks.Close()

	assert.Len(t, ks.PublicKey(), protocol.KeyBytes)
	assert.False(t, isZero(ks.PublicKey()))
	assertDerived(t, ks)

	other, err := NewKeyStore()
	require.NoError(t, err)
	defer other.Close()
	assert.NotEqual(t, ks.PublicKey(), other.PublicKey())
}

func TestNewKeyStoreFromSecretKey(t *testing.T) {
	secret := make([]byte, protocol.KeyBytes)
	for i := range secret {
		secret[i] = byte(i + 1)
	}

	a, err := NewKeyStoreFromSecretKey(secret)
	require.NoError(t, err)
	b, err := NewKeyStoreFromSecretKey(secret)
	require.NoError(t, err)

	assert.Equal(t, a.PublicKey(), b.PublicKey(), "derivation must be deterministic")
	assert.Equal(t, secret, a.SecretKey())
	assertDerived(t, a)

	c, err := NewKeyStoreFromSecretKeyHex(hex.EncodeToString(secret))
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey(), c.PublicKey())
}

func TestNewKeyStoreFromSecretKeyInvalid(t *testing.T) {
	cases := []struct {
		name   string
		secret []byte
	}{
		{"short", make([]byte, 31)},
		{"long", make([]byte, 33)},
		{"zero", make([]byte, 32)},
		{"nil", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewKeyStoreFromSecretKey(tc.secret)
			assert.ErrorIs(t, err, protocol.ErrInvalidKey)
		})
	}

	_, err := NewKeyStoreFromSecretKeyHex("not hex")
	assert.ErrorIs(t, err, protocol.ErrInvalidKey)
}

func TestNewKeyStoreFromKeyPair(t *testing.T) {
	orig, err := NewKeyStore()
	require.NoError(t, err)

	ks, err := NewKeyStoreFromKeyPair(orig.PublicKey(), orig.SecretKey())
	require.NoError(t, err)
	assert.Equal(t, orig.PublicKey(), ks.PublicKey())
	assertDerived(t, ks)

	ksHex, err := NewKeyStoreFromKeyPairHex(orig.PublicKeyHex(), hex.EncodeToString(orig.SecretKey()))
	require.NoError(t, err)
	assert.Equal(t, orig.PublicKey(), ksHex.PublicKey())

	other, err := NewKeyStore()
	require.NoError(t, err)
	_, err = NewKeyStoreFromKeyPair(other.PublicKey(), orig.SecretKey())
	assert.ErrorIs(t, err, protocol.ErrInvalidKey, "mismatched pair must be rejected")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, err := NewKeyStore()
	require.NoError(t, err)
	bob, err := NewKeyStore()
	require.NoError(t, err)

	messages := [][]byte{
		{},
		[]byte("x"),
		[]byte("Hello, SaltyRTC"),
		bytes.Repeat([]byte{0xab}, 4096),
	}

	for _, msg := range messages {
		nonce := randomNonce(t)
		box, err := alice.Encrypt(msg, nonce, bob.PublicKey())
		require.NoError(t, err)
		assert.Equal(t, nonce, box.Nonce[:])

		plaintext, err := bob.Decrypt(box, alice.PublicKey())
		require.NoError(t, err)
		assert.Equal(t, msg, plaintext)
	}
}

func TestDecryptFailures(t *testing.T) {
	alice, err := NewKeyStore()
	require.NoError(t, err)
	bob, err := NewKeyStore()
	require.NoError(t, err)
	eve, err := NewKeyStore()
	require.NoError(t, err)

	box, err := alice.Encrypt([]byte("secret"), randomNonce(t), bob.PublicKey())
	require.NoError(t, err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := &Box{Nonce: box.Nonce, Data: append([]byte(nil), box.Data...)}
		tampered.Data[len(tampered.Data)-1] ^= 0x01
		out, err := bob.Decrypt(tampered, alice.PublicKey())
		assert.ErrorIs(t, err, protocol.ErrCrypto)
		assert.Nil(t, out)
	})

	t.Run("wrong nonce", func(t *testing.T) {
		wrong := &Box{Data: box.Data}
		copy(wrong.Nonce[:], randomNonce(t))
		out, err := bob.Decrypt(wrong, alice.PublicKey())
		assert.ErrorIs(t, err, protocol.ErrCrypto)
		assert.Nil(t, out)
	})

	t.Run("wrong key pair", func(t *testing.T) {
		out, err := eve.Decrypt(box, alice.PublicKey())
		assert.ErrorIs(t, err, protocol.ErrCrypto)
		assert.Nil(t, out)
	})

	t.Run("truncated", func(t *testing.T) {
		out, err := bob.Decrypt(&Box{Nonce: box.Nonce, Data: box.Data[:5]}, alice.PublicKey())
		assert.ErrorIs(t, err, protocol.ErrCrypto)
		assert.Nil(t, out)
	})

	t.Run("malformed peer key", func(t *testing.T) {
		out, err := bob.Decrypt(box, alice.PublicKey()[:16])
		assert.ErrorIs(t, err, protocol.ErrInvalidKey)
		assert.Nil(t, out)
	})
}

func TestEncryptInvalidInput(t *testing.T) {
	ks, err := NewKeyStore()
	require.NoError(t, err)
	peer, err := NewKeyStore()
	require.NoError(t, err)

	_, err = ks.Encrypt([]byte("m"), randomNonce(t), make([]byte, 32))
	assert.ErrorIs(t, err, protocol.ErrInvalidKey, "zero key")

	_, err = ks.Encrypt([]byte("m"), randomNonce(t), make([]byte, 12))
	assert.ErrorIs(t, err, protocol.ErrInvalidKey, "short key")

	// A low-order point yields an all-zero shared secret.
	lowOrder := make([]byte, 32)
	lowOrder[0] = 1
	_, err = ks.Encrypt([]byte("m"), randomNonce(t), lowOrder)
	assert.ErrorIs(t, err, protocol.ErrInvalidKey, "low order point")

	_, err = ks.Encrypt([]byte("m"), []byte{1, 2, 3}, peer.PublicKey())
	assert.ErrorIs(t, err, protocol.ErrArgument, "short nonce")
}

func TestKeyStoreClose(t *testing.T) {
	ks, err := NewKeyStore()
	require.NoError(t, err)
	peer, err := NewKeyStore()
	require.NoError(t, err)

	ks.Close()
	ks.Close()

	assert.True(t, isZero(ks.SecretKey()), "secret key must be wiped")
	_, err = ks.Encrypt([]byte("m"), randomNonce(t), peer.PublicKey())
	assert.ErrorIs(t, err, protocol.ErrCrypto)
}
