// Package messages defines the SaltyRTC signaling messages and their
// MessagePack encoding.
//
// Every message is a MessagePack map with a "type" key. [Decode] peeks at
// the type and returns the matching struct; messages of unknown type are
// returned as a [TaskMessage] so that the negotiated task can claim them.
package messages
