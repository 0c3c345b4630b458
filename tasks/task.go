package tasks

import (
	"fmt"

	"github.com/opd-ai/saltyrtc/protocol"
)

// Channel is the side of the signaling engine a task talks through once
// the peer handshake is done.
type Channel interface {
	// SendTaskMessage encrypts msg for the peer. msg must carry a "type"
	// listed in the task's SupportedMessageTypes.
	SendTaskMessage(msg map[string]interface{}) error
}

// Task is a named, negotiable protocol extension.
type Task interface {
	// Name is the unique name advertised during negotiation.
	Name() string
	// SupportedMessageTypes lists the message types routed to the task.
	SupportedMessageTypes() []string
	// Data is sent to the peer alongside the task name. May be nil.
	Data() map[string]interface{}
	// Init is called once the task was chosen, with the peer's data.
	Init(ch Channel, data map[string]interface{}) error
	// OnPeerHandshakeDone is called when the signaling state becomes open.
	OnPeerHandshakeDone()
	// OnTaskMessage receives a decrypted message of a supported type.
	OnTaskMessage(msg map[string]interface{}) error
	// Close is called when the signaling connection ends.
	Close(code protocol.CloseCode)
}

// reservedTypes are signaling message types a task may not claim.
var reservedTypes = map[string]bool{
	"server-hello":   true,
	"client-hello":   true,
	"client-auth":    true,
	"server-auth":    true,
	"new-initiator":  true,
	"new-responder":  true,
	"drop-responder": true,
	"send-error":     true,
	"disconnected":   true,
	"token":          true,
	"key":            true,
	"auth":           true,
	"close":          true,
	"application":    true,
}

// TaskNames returns the task names in order. Duplicate names violate the
// input contract and fail with protocol.ErrArgument.
func TaskNames(tasks []Task) ([]string, error) {
	names := make([]string, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		name := task.Name()
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate task name %q", protocol.ErrArgument, name)
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// ChooseCommonTask returns the first task in ours whose name appears
// anywhere in theirs, or nil if there is none.
func ChooseCommonTask(ours []Task, theirs []string) Task {
	offered := make(map[string]bool, len(theirs))
	for _, name := range theirs {
		offered[name] = true
	}
	for _, task := range ours {
		if offered[task.Name()] {
			return task
		}
	}
	return nil
}

// Find returns the task called name, or nil.
func Find(tasks []Task, name string) Task {
	for _, task := range tasks {
		if task.Name() == name {
			return task
		}
	}
	return nil
}

// Validate checks a configured task list: at least one task, unique names
// and no message type that collides with signaling messages.
func Validate(tasks []Task) error {
	if len(tasks) == 0 {
		return fmt.Errorf("%w: at least one task is required", protocol.ErrArgument)
	}
	if _, err := TaskNames(tasks); err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Name() == "" {
			return fmt.Errorf("%w: task name must not be empty", protocol.ErrArgument)
		}
		for _, t := range task.SupportedMessageTypes() {
			if reservedTypes[t] {
				return fmt.Errorf("%w: task %q claims reserved message type %q", protocol.ErrArgument, task.Name(), t)
			}
		}
	}
	return nil
}

// Supports reports whether task handles messages of type msgType.
func Supports(task Task, msgType string) bool {
	if task == nil {
		return false
	}
	for _, t := range task.SupportedMessageTypes() {
		if t == msgType {
			return true
		}
	}
	return false
}
