package messages

import (
	"testing"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeStampsType(t *testing.T) {
	data, err := Encode(&Key{Key: make([]byte, 32)})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(data, &raw))
	assert.Equal(t, TypeKey, raw["type"])
}

func TestDecodeDispatchesOnType(t *testing.T) {
	connected := true
	tests := []struct {
		name string
		msg  Message
	}{
		{"server-hello", &ServerHello{Key: []byte{1, 2, 3}}},
		{"server-auth", &ServerAuth{YourCookie: make([]byte, 16), InitiatorConnected: &connected}},
		{"new-responder", &NewResponder{ID: 7}},
		{"drop-responder", &DropResponder{ID: 3, Reason: 3004}},
		{"send-error", &SendError{ID: []byte{1, 2, 3, 4, 5, 6, 7, 8}}},
		{"auth", &Auth{YourCookie: make([]byte, 16), Task: "x"}},
		{"close", &Close{Reason: 1001}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			require.NoError(t, err)
			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestServerAuthRoleFields(t *testing.T) {
	data, err := Encode(&ServerAuth{YourCookie: make([]byte, 16), Responders: []int{2, 5}})
	require.NoError(t, err)

	msg, err := Expect[*ServerAuth](data)
	require.NoError(t, err)
	assert.Nil(t, msg.InitiatorConnected)
	assert.Equal(t, []int{2, 5}, msg.Responders)
}

func TestApplicationDataIsLooselyTyped(t *testing.T) {
	data, err := Encode(&Application{Data: map[string]interface{}{"n": 5, "s": "hi"}})
	require.NoError(t, err)

	msg, err := Expect[*Application](data)
	require.NoError(t, err)
	fields, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(5), fields["n"])
	assert.Equal(t, "hi", fields["s"])
}

func TestBinaryPayloadStaysBytes(t *testing.T) {
	data, err := Encode(&Application{Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	app, err := Expect[*Application](data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, app.Data)

	data, err = Encode(&TaskMessage{Fields: map[string]interface{}{
		"type": "data",
		"p":    []byte{1, 2, 3},
		"list": []interface{}{[]byte{4}, "s", 7},
	}})
	require.NoError(t, err)
	msg, err := Decode(data)
	require.NoError(t, err)
	tm, ok := msg.(*TaskMessage)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, tm.Fields["p"])
	assert.Equal(t, []interface{}{[]byte{4}, "s", int64(7)}, tm.Fields["list"])
	assert.Equal(t, "data", tm.Fields["type"])

	data, err = Encode(&Auth{
		YourCookie: make([]byte, 16),
		Task:       "x",
		Data:       map[string]map[string]interface{}{"x": {"blob": []byte{9}, "n": 300}},
	})
	require.NoError(t, err)
	auth, err := Expect[*Auth](data)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, auth.Data["x"]["blob"])
	assert.Equal(t, int64(300), auth.Data["x"]["n"])
}

func TestUnknownTypeBecomesTaskMessage(t *testing.T) {
	data, err := Encode(&TaskMessage{Fields: map[string]interface{}{"type": "data", "p": "x"}})
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	tm, ok := msg.(*TaskMessage)
	require.True(t, ok)
	assert.Equal(t, "data", tm.MessageType())
	assert.Equal(t, "x", tm.Fields["p"])
}

func TestEncodeRejectsUntypedTaskMessage(t *testing.T) {
	_, err := Encode(&TaskMessage{Fields: map[string]interface{}{"p": 1}})
	assert.ErrorIs(t, err, protocol.ErrArgument)

	_, err = Encode(nil)
	assert.ErrorIs(t, err, protocol.ErrArgument)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a map", []byte{0xa3, 'a', 'b', 'c'}},
		{"truncated", []byte{0x81, 0xa4, 't'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, protocol.ErrProtocol)
		})
	}

	untyped, err := msgpack.Marshal(map[string]interface{}{"key": []byte{1}})
	require.NoError(t, err)
	_, err = Decode(untyped)
	assert.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestExpectWrongType(t *testing.T) {
	data, err := Encode(&Token{Key: make([]byte, 32)})
	require.NoError(t, err)

	_, err = Expect[*Key](data)
	assert.ErrorIs(t, err, protocol.ErrProtocol)
}
