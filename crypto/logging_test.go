package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestPublicKeyPreview(t *testing.T) {
	key := bytes.Repeat([]byte{0xab}, 32)
	fields := PublicKeyPreview(key, "peer")

	assert.Equal(t, "abababababababab...", fields["peer_preview"])
	assert.Equal(t, 32, fields["peer_size"])

	fields = PublicKeyPreview(nil, "empty")
	assert.Equal(t, "nil", fields["empty_preview"])
	assert.Equal(t, 0, fields["empty_size"])

	fields = PublicKeyPreview([]byte{0x01, 0x02}, "short")
	assert.Equal(t, "0102", fields["short_preview"])
}

func TestLoggerHelperFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.StandardLogger()
	oldOut, oldLevel, oldFormatter := logger.Out, logger.Level, logger.Formatter
	defer func() {
		logger.SetOutput(oldOut)
		logger.SetLevel(oldLevel)
		logger.SetFormatter(oldFormatter)
	}()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})

	NewLogger("TestLoggerHelperFields").
		WithField("peer", 2).
		WithError(errors.New("boom"), "decrypt").
		Warn("failure")

	out := buf.String()
	assert.Contains(t, out, `"function":"TestLoggerHelperFields"`)
	assert.Contains(t, out, `"package":"crypto"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"operation":"decrypt"`)
}

func TestSecretKeyNeverLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.StandardLogger()
	oldOut, oldLevel := logger.Out, logger.Level
	defer func() {
		logger.SetOutput(oldOut)
		logger.SetLevel(oldLevel)
	}()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.TraceLevel)

	secret := bytes.Repeat([]byte{0x42}, 32)
	ks, err := NewKeyStoreFromSecretKey(secret)
	assert.NoError(t, err)
	defer ks.Close()

	assert.NotContains(t, buf.String(), "4242424242424242")
}

func TestKeyStoreFailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.StandardLogger()
	oldOut, oldLevel, oldFormatter := logger.Out, logger.Level, logger.Formatter
	defer func() {
		logger.SetOutput(oldOut)
		logger.SetLevel(oldLevel)
		logger.SetFormatter(oldFormatter)
	}()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ks, err := NewKeyStore()
	assert.NoError(t, err)
	defer ks.Close()
	peer, err := NewKeyStore()
	assert.NoError(t, err)
	defer peer.Close()

	lowOrder := make([]byte, 32)
	lowOrder[0] = 1
	nonce := make([]byte, 24)
	_, err = ks.Encrypt([]byte("m"), nonce, lowOrder)
	assert.Error(t, err)
	out := buf.String()
	assert.Contains(t, out, `"function":"KeyStore.checkPeer"`)
	assert.Contains(t, out, `"operation":"x25519"`)
	assert.Contains(t, out, `"level":"warning"`)

	buf.Reset()
	_, err = ks.Decrypt(&Box{Data: make([]byte, 40)}, peer.PublicKey())
	assert.Error(t, err)
	assert.Contains(t, buf.String(), `"ciphertext_size":40`)
}
