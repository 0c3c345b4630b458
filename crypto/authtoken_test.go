package crypto

import (
	"testing"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTokenRoundTrip(t *testing.T) {
	token, err := NewAuthToken()
	require.NoError(t, err)

	same, err := NewAuthTokenFromHex(token.Hex())
	require.NoError(t, err)
	assert.Equal(t, token.Bytes(), same.Bytes())

	box, err := token.Encrypt([]byte("responder key"), randomNonce(t))
	require.NoError(t, err)

	plaintext, err := same.Decrypt(box)
	require.NoError(t, err)
	assert.Equal(t, []byte("responder key"), plaintext)
}

func TestAuthTokenWrongToken(t *testing.T) {
	a, err := NewAuthToken()
	require.NoError(t, err)
	b, err := NewAuthToken()
	require.NoError(t, err)

	box, err := a.Encrypt([]byte("payload"), randomNonce(t))
	require.NoError(t, err)

	out, err := b.Decrypt(box)
	assert.ErrorIs(t, err, protocol.ErrCrypto)
	assert.Nil(t, out)
}

func TestAuthTokenInvalid(t *testing.T) {
	_, err := NewAuthTokenFromBytes(make([]byte, 16))
	assert.ErrorIs(t, err, protocol.ErrInvalidKey)

	_, err = NewAuthTokenFromHex("zz")
	assert.ErrorIs(t, err, protocol.ErrInvalidKey)
}

func TestAuthTokenClose(t *testing.T) {
	token, err := NewAuthToken()
	require.NoError(t, err)
	token.Close()

	assert.True(t, isZero(token.Bytes()))
	_, err = token.Encrypt([]byte("x"), randomNonce(t))
	assert.ErrorIs(t, err, protocol.ErrCrypto)
}
