package saltyrtc

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/saltyrtc/config"
	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/relay"
	"github.com/opd-ai/saltyrtc/signaling"
	"github.com/opd-ai/saltyrtc/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	assert.Equal(t, signaling.RoleInitiator, opts.Role)
	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
	assert.NotEmpty(t, opts.RelayURL)
}

func TestNewValidation(t *testing.T) {
	opts := NewOptions()
	opts.RelayURL = ""
	_, err := New(opts)
	assert.ErrorIs(t, err, protocol.ErrArgument)

	opts = NewOptions()
	opts.Role = signaling.Role(9)
	_, err = New(opts)
	assert.ErrorIs(t, err, protocol.ErrArgument)

	opts = NewOptions()
	opts.Role = signaling.RoleResponder
	_, err = New(opts)
	assert.ErrorIs(t, err, protocol.ErrInvalidKey)
}

func TestTasksByName(t *testing.T) {
	ts, err := TasksByName([]string{tasks.RelayedDataName})
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, tasks.RelayedDataName, ts[0].Name())

	_, err = TasksByName([]string{"v1.webrtc.tasks.saltyrtc.org"})
	assert.ErrorIs(t, err, protocol.ErrArgument)
}

func TestOptionsFromSettings(t *testing.T) {
	peer, err := crypto.NewKeyStore()
	require.NoError(t, err)
	token, err := crypto.NewAuthToken()
	require.NoError(t, err)

	settings, err := config.Parse(strings.NewReader(`
[relay]
host = 127.0.0.1
port = 9000
scheme = ws

[peer]
role = responder
public_key = ` + peer.PublicKeyHex() + `
auth_token = ` + token.Hex() + `
`))
	require.NoError(t, err)

	opts, err := OptionsFromSettings(settings)
	require.NoError(t, err)
	assert.Equal(t, signaling.RoleResponder, opts.Role)
	assert.Equal(t, "ws://127.0.0.1:9000", opts.RelayURL)
	assert.Equal(t, peer.PublicKey(), opts.PeerPermanentKey)
	assert.Equal(t, token.Bytes(), opts.AuthToken.Bytes())
	assert.Nil(t, opts.ServerKey)
	require.NotNil(t, opts.Keys)
	require.Len(t, opts.Tasks, 1)
}

// TestClientsOverWebSocket runs a full session between two clients through
// a relay served over HTTP.
func TestClientsOverWebSocket(t *testing.T) {
	relayKeys, err := crypto.NewKeyStore()
	require.NoError(t, err)
	srv := relay.NewServer(relayKeys, nil)
	defer srv.Close()
	hs := httptest.NewServer(srv)
	defer hs.Close()
	url := "ws" + strings.TrimPrefix(hs.URL, "http")

	initOpts := NewOptions()
	initOpts.RelayURL = url
	initOpts.ServerKey = srv.PublicKey()
	initiator, err := New(initOpts)
	require.NoError(t, err)
	defer initiator.Kill()
	require.NoError(t, initiator.Connect(testContext(t)))

	token, err := crypto.NewAuthTokenFromBytes(initiator.AuthToken())
	require.NoError(t, err)
	respOpts := NewOptions()
	respOpts.Role = signaling.RoleResponder
	respOpts.RelayURL = url
	respOpts.PeerPermanentKey = initiator.PublicPermanentKey()
	respOpts.AuthToken = token
	responder, err := New(respOpts)
	require.NoError(t, err)
	defer responder.Kill()
	require.NoError(t, responder.Connect(testContext(t)))

	require.NoError(t, initiator.WaitOpen(testContext(t)))
	require.NoError(t, responder.WaitOpen(testContext(t)))

	received := make(chan interface{}, 1)
	initiator.RelayedData().OnData(func(p interface{}) { received <- p })
	require.NoError(t, responder.RelayedData().Send([]byte{1, 2, 3}))

	select {
	case p := <-received:
		assert.Equal(t, []byte{1, 2, 3}, p)
	case <-time.After(5 * time.Second):
		t.Fatal("no data received")
	}

	responder.Kill()
	select {
	case <-initiator.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("initiator did not close")
	}
	assert.Equal(t, protocol.CloseGoingAway, initiator.CloseCode())
	assert.Equal(t, protocol.CloseNormal, responder.CloseCode())
}
