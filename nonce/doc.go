// Package nonce implements the 24-byte SaltyRTC nonce and the combined
// sequence numbers (CSN) that protect every link against replay.
//
// Wire layout, big endian:
//
//	cookie[0:16] source[16] destination[17] overflow[18:20] sequence[20:24]
//
// The overflow and sequence fields together form a 48-bit combined
// sequence number. Each side of a link counts its own CSN upwards from a
// random start and refuses to wrap; the CSN of the other side must strictly
// increase from one received message to the next.
package nonce
