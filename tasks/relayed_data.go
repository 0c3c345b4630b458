package tasks

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/sirupsen/logrus"
)

// RelayedDataName is the negotiated name of the relayed data task.
const RelayedDataName = "v0.relayed-data.tasks.saltyrtc.org"

const relayedDataType = "data"

// ErrTaskNotReady is returned when sending before the handshake finished.
var ErrTaskNotReady = errors.New("task not ready")

// DataCallback receives the payload of a data message.
type DataCallback func(payload interface{})

// CloseCallback receives the close code when the connection ends.
type CloseCallback func(code protocol.CloseCode)

// RelayedData keeps using the signaling channel for arbitrary data once
// the peer handshake is done.
type RelayedData struct {
	mu      sync.Mutex
	ch      Channel
	ready   bool
	closed  bool
	onData  DataCallback
	onClose CloseCallback
}

// NewRelayedData creates the task. Callbacks may be set later.
func NewRelayedData() *RelayedData {
	return &RelayedData{}
}

// OnData sets the callback for incoming data.
func (r *RelayedData) OnData(cb DataCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = cb
}

// OnClose sets the callback for connection shutdown.
func (r *RelayedData) OnClose(cb CloseCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = cb
}

// Name returns "v0.relayed-data.tasks.saltyrtc.org".
func (r *RelayedData) Name() string { return RelayedDataName }

// SupportedMessageTypes reports the single "data" message type.
func (r *RelayedData) SupportedMessageTypes() []string { return []string{relayedDataType} }

// Data returns nil. The task negotiates no parameters.
func (r *RelayedData) Data() map[string]interface{} { return nil }

// Init binds the task to the session channel used by Send.
func (r *RelayedData) Init(ch Channel, data map[string]interface{}) error {
	if ch == nil {
		return fmt.Errorf("%w: nil channel", protocol.ErrArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ch = ch
	return nil
}

// OnPeerHandshakeDone allows Send once the peer is authenticated.
func (r *RelayedData) OnPeerHandshakeDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = true
}

// OnTaskMessage hands the "p" payload of a data message to the data callback.
func (r *RelayedData) OnTaskMessage(msg map[string]interface{}) error {
	if msg["type"] != relayedDataType {
		return fmt.Errorf("%w: unexpected task message type %v", protocol.ErrProtocol, msg["type"])
	}
	r.mu.Lock()
	cb := r.onData
	r.mu.Unlock()

	if cb == nil {
		logrus.WithFields(logrus.Fields{
			"function": "RelayedData.OnTaskMessage",
			"task":     RelayedDataName,
		}).Warn("Dropping data message without data callback")
		return nil
	}
	cb(msg["p"])
	return nil
}

// Close marks the task closed and runs the close callback once.
func (r *RelayedData) Close(code protocol.CloseCode) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.ready = false
	cb := r.onClose
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "RelayedData.Close",
		"code":     code.String(),
	}).Debug("Relayed data task closed")

	if cb != nil {
		cb(code)
	}
}

// Send relays payload to the peer.
func (r *RelayedData) Send(payload interface{}) error {
	r.mu.Lock()
	ch, ready := r.ch, r.ready
	r.mu.Unlock()
	if !ready || ch == nil {
		return ErrTaskNotReady
	}
	return ch.SendTaskMessage(map[string]interface{}{
		"type": relayedDataType,
		"p":    payload,
	})
}
