// Package protocol holds the constants shared by every part of the SaltyRTC
// signaling implementation: peer addresses, close codes, the subprotocol
// identifier and the error kinds used throughout the module.
//
// Error kinds are sentinel values. Callers wrap them with context and test
// for them with errors.Is:
//
//	if errors.Is(err, protocol.ErrValidation) {
//	    // replayed or reordered frame
//	}
//
// Every error kind maps onto a close code through [CloseCodeFor], which is
// what the signaling layer reports to the application when a link dies.
package protocol
