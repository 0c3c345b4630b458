package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/saltyrtc/crypto"
	"github.com/opd-ai/saltyrtc/messages"
	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/opd-ai/saltyrtc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHTTPSendsServerHello(t *testing.T) {
	srv := newRelay(t, nil)
	hs := httptest.NewServer(srv)
	defer hs.Close()

	keys, err := crypto.NewKeyStore()
	require.NoError(t, err)

	d := &transport.WebSocketDialer{URL: "ws" + strings.TrimPrefix(hs.URL, "http")}
	conn, err := d.Dial(testContext(t), keys.PublicKeyHex())
	require.NoError(t, err)
	defer conn.Close(protocol.CloseNormal)

	frame, err := conn.ReadFrame(testContext(t))
	require.NoError(t, err)
	hello, err := messages.Expect[*messages.ServerHello](frame[protocol.NonceBytes:])
	require.NoError(t, err)
	assert.Len(t, hello.Key, protocol.KeyBytes)
}

func TestListenAndServeStopsWithContext(t *testing.T) {
	srv := newRelay(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}
