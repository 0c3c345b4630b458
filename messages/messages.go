package messages

// Message types.
const (
	TypeServerHello   = "server-hello"
	TypeClientHello   = "client-hello"
	TypeClientAuth    = "client-auth"
	TypeServerAuth    = "server-auth"
	TypeNewInitiator  = "new-initiator"
	TypeNewResponder  = "new-responder"
	TypeDropResponder = "drop-responder"
	TypeSendError     = "send-error"
	TypeDisconnected  = "disconnected"
	TypeToken         = "token"
	TypeKey           = "key"
	TypeAuth          = "auth"
	TypeClose         = "close"
	TypeApplication   = "application"
)

// Message is implemented by every signaling message.
type Message interface {
	MessageType() string
	stamp()
}

// ServerHello opens the server handshake (plaintext).
type ServerHello struct {
	Type string `msgpack:"type"`
	Key  []byte `msgpack:"key"`
}

// ClientHello announces a responder's permanent key (plaintext).
type ClientHello struct {
	Type string `msgpack:"type"`
	Key  []byte `msgpack:"key"`
}

// ClientAuth authenticates a client towards the server.
type ClientAuth struct {
	Type         string   `msgpack:"type"`
	YourCookie   []byte   `msgpack:"your_cookie"`
	Subprotocols []string `msgpack:"subprotocols"`
	PingInterval uint32   `msgpack:"ping_interval"`
	YourKey      []byte   `msgpack:"your_key,omitempty"`
}

// ServerAuth completes the server handshake. Initiators receive the list
// of connected responders, responders whether an initiator is connected.
type ServerAuth struct {
	Type               string `msgpack:"type"`
	YourCookie         []byte `msgpack:"your_cookie"`
	SignedKeys         []byte `msgpack:"signed_keys,omitempty"`
	InitiatorConnected *bool  `msgpack:"initiator_connected,omitempty"`
	Responders         []int  `msgpack:"responders,omitempty"`
}

// NewInitiator tells responders that an initiator connected.
type NewInitiator struct {
	Type string `msgpack:"type"`
}

// NewResponder tells the initiator that a responder connected.
type NewResponder struct {
	Type string `msgpack:"type"`
	ID   uint8  `msgpack:"id"`
}

// DropResponder asks the server to disconnect a responder.
type DropResponder struct {
	Type   string `msgpack:"type"`
	ID     uint8  `msgpack:"id"`
	Reason int    `msgpack:"reason,omitempty"`
}

// SendError reports that a relayed message could not be delivered. ID is
// bytes 16..24 of the undeliverable message's nonce.
type SendError struct {
	Type string `msgpack:"type"`
	ID   []byte `msgpack:"id"`
}

// Disconnected tells a client that a peer left the path.
type Disconnected struct {
	Type string `msgpack:"type"`
	ID   uint8  `msgpack:"id"`
}

// Token carries the responder's permanent key, sealed with the auth token.
type Token struct {
	Type string `msgpack:"type"`
	Key  []byte `msgpack:"key"`
}

// Key carries a session public key, sealed with the permanent keys.
type Key struct {
	Type string `msgpack:"type"`
	Key  []byte `msgpack:"key"`
}

// Auth finishes the peer handshake. The responder fills Tasks, the
// initiator answers with the chosen Task.
type Auth struct {
	Type       string                            `msgpack:"type"`
	YourCookie []byte                            `msgpack:"your_cookie"`
	Tasks      []string                          `msgpack:"tasks,omitempty"`
	Task       string                            `msgpack:"task,omitempty"`
	Data       map[string]map[string]interface{} `msgpack:"data"`
}

// Close ends the peer connection with a reason code.
type Close struct {
	Type   string `msgpack:"type"`
	Reason int    `msgpack:"reason"`
}

// Application carries arbitrary application data.
type Application struct {
	Type string      `msgpack:"type"`
	Data interface{} `msgpack:"data"`
}

// TaskMessage is any message of a type unknown to signaling.
type TaskMessage struct {
	Fields map[string]interface{}
}

func (*ServerHello) MessageType() string   { return TypeServerHello }
func (*ClientHello) MessageType() string   { return TypeClientHello }
func (*ClientAuth) MessageType() string    { return TypeClientAuth }
func (*ServerAuth) MessageType() string    { return TypeServerAuth }
func (*NewInitiator) MessageType() string  { return TypeNewInitiator }
func (*NewResponder) MessageType() string  { return TypeNewResponder }
func (*DropResponder) MessageType() string { return TypeDropResponder }
func (*SendError) MessageType() string     { return TypeSendError }
func (*Disconnected) MessageType() string  { return TypeDisconnected }
func (*Token) MessageType() string         { return TypeToken }
func (*Key) MessageType() string           { return TypeKey }
func (*Auth) MessageType() string          { return TypeAuth }
func (*Close) MessageType() string         { return TypeClose }
func (*Application) MessageType() string   { return TypeApplication }

// MessageType returns the "type" field, or "" if it is not a string.
func (m *TaskMessage) MessageType() string {
	t, _ := m.Fields["type"].(string)
	return t
}

func (m *ServerHello) stamp()   { m.Type = TypeServerHello }
func (m *ClientHello) stamp()   { m.Type = TypeClientHello }
func (m *ClientAuth) stamp()    { m.Type = TypeClientAuth }
func (m *ServerAuth) stamp()    { m.Type = TypeServerAuth }
func (m *NewInitiator) stamp()  { m.Type = TypeNewInitiator }
func (m *NewResponder) stamp()  { m.Type = TypeNewResponder }
func (m *DropResponder) stamp() { m.Type = TypeDropResponder }
func (m *SendError) stamp()     { m.Type = TypeSendError }
func (m *Disconnected) stamp()  { m.Type = TypeDisconnected }
func (m *Token) stamp()         { m.Type = TypeToken }
func (m *Key) stamp()           { m.Type = TypeKey }
func (m *Auth) stamp()          { m.Type = TypeAuth }
func (m *Close) stamp()         { m.Type = TypeClose }
func (m *Application) stamp()   { m.Type = TypeApplication }
func (m *TaskMessage) stamp()   {}
