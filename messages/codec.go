package messages

import (
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/vmihailenco/msgpack/v5"
)

// Encode stamps the message type and encodes msg as MessagePack.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", protocol.ErrArgument)
	}
	msg.stamp()

	var v interface{} = msg
	if tm, ok := msg.(*TaskMessage); ok {
		if tm.MessageType() == "" {
			return nil, fmt.Errorf("%w: task message without type", protocol.ErrArgument)
		}
		v = tm.Fields
	}

	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return data, nil
}

// Decode parses a MessagePack map into the message struct matching its
// "type". Malformed input fails with protocol.ErrProtocol.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type string `msgpack:"type"`
	}
	if err := decodeInto(data, &head); err != nil {
		return nil, err
	}

	var msg Message
	switch head.Type {
	case "":
		return nil, fmt.Errorf("%w: message without type", protocol.ErrProtocol)
	case TypeServerHello:
		msg = &ServerHello{}
	case TypeClientHello:
		msg = &ClientHello{}
	case TypeClientAuth:
		msg = &ClientAuth{}
	case TypeServerAuth:
		msg = &ServerAuth{}
	case TypeNewInitiator:
		msg = &NewInitiator{}
	case TypeNewResponder:
		msg = &NewResponder{}
	case TypeDropResponder:
		msg = &DropResponder{}
	case TypeSendError:
		msg = &SendError{}
	case TypeDisconnected:
		msg = &Disconnected{}
	case TypeToken:
		msg = &Token{}
	case TypeKey:
		msg = &Key{}
	case TypeAuth:
		msg = &Auth{}
	case TypeClose:
		msg = &Close{}
	case TypeApplication:
		msg = &Application{}
	default:
		tm := &TaskMessage{}
		if err := decodeInto(data, &tm.Fields); err != nil {
			return nil, err
		}
		for k, v := range tm.Fields {
			tm.Fields[k] = normalize(v)
		}
		return tm, nil
	}

	if err := decodeInto(data, msg); err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case *Application:
		m.Data = normalize(m.Data)
	case *Auth:
		for _, fields := range m.Data {
			for k, v := range fields {
				fields[k] = normalize(v)
			}
		}
	}
	return msg, nil
}

func decodeInto(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed message: %v", protocol.ErrProtocol, err)
	}
	return nil
}

// normalize widens the integer and float types msgpack picks for
// free-form values to int64, uint64 and float64. Binary stays []byte.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint:
		return uint64(x)
	case float32:
		return float64(x)
	case map[string]interface{}:
		for k, e := range x {
			x[k] = normalize(e)
		}
	case map[interface{}]interface{}:
		for k, e := range x {
			x[k] = normalize(e)
		}
	case []interface{}:
		for i, e := range x {
			x[i] = normalize(e)
		}
	}
	return v
}

// Expect decodes data and checks that it is of type T.
func Expect[T Message](data []byte) (T, error) {
	var zero T
	msg, err := Decode(data)
	if err != nil {
		return zero, err
	}
	typed, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("%w: expected %s message, got %s", protocol.ErrProtocol, zero.MessageType(), msg.MessageType())
	}
	return typed, nil
}
