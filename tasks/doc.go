// Package tasks defines the Task capability negotiated at the end of the
// SaltyRTC peer handshake and the helpers used to pick one.
//
// Each side offers its tasks in its own order of preference. The side
// performing the negotiation walks ITS OWN list and takes the first task
// the peer also offers; the order of the peer's list never matters:
//
//	chosen := tasks.ChooseCommonTask(ours, theirNames)
//	if chosen == nil {
//	    // no shared task
//	}
//
// RelayedData is a complete task that keeps exchanging data over the
// signaling channel once the handshake is done.
package tasks
