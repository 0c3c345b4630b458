package tasks

import (
	"testing"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	sent []map[string]interface{}
}

func (r *recordingChannel) SendTaskMessage(msg map[string]interface{}) error {
	r.sent = append(r.sent, msg)
	return nil
}

func TestRelayedDataLifecycle(t *testing.T) {
	task := NewRelayedData()
	assert.Equal(t, RelayedDataName, task.Name())
	assert.NoError(t, Validate([]Task{task}))

	ch := &recordingChannel{}
	require.NoError(t, task.Init(ch, nil))

	assert.ErrorIs(t, task.Send("early"), ErrTaskNotReady)

	task.OnPeerHandshakeDone()
	require.NoError(t, task.Send("hello"))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "data", ch.sent[0]["type"])
	assert.Equal(t, "hello", ch.sent[0]["p"])

	var received []interface{}
	task.OnData(func(p interface{}) { received = append(received, p) })
	require.NoError(t, task.OnTaskMessage(map[string]interface{}{"type": "data", "p": int8(7)}))
	assert.Equal(t, []interface{}{int8(7)}, received)

	assert.ErrorIs(t, task.OnTaskMessage(map[string]interface{}{"type": "other"}), protocol.ErrProtocol)

	var closedWith protocol.CloseCode
	calls := 0
	task.OnClose(func(code protocol.CloseCode) { closedWith = code; calls++ })
	task.Close(protocol.CloseGoingAway)
	task.Close(protocol.CloseGoingAway)
	assert.Equal(t, protocol.CloseGoingAway, closedWith)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, task.Send("late"), ErrTaskNotReady)
}

func TestRelayedDataInitRequiresChannel(t *testing.T) {
	assert.ErrorIs(t, NewRelayedData().Init(nil, nil), protocol.ErrArgument)
}
