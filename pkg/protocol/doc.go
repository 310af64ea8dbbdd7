// Package protocol implements the chat relay wire format.
//
// A connection carries a single self-describing binary stream: one
// connection-lifetime sequence container whose elements are fixed-size
// maps keyed by small integer field tags. One map is one Record, the
// sole unit of exchange in both directions.
//
// The decoder is incremental: bytes are appended to a per-connection
// buffer with Feed, which emits zero or more fully decoded Records and
// is safely resumable when an item is split across socket reads. No
// bytes are lost or duplicated across calls, and a partially decoded
// Record is never exposed to callers.
//
// The encoder is symmetric: the first Encode on a stream lazily opens
// the outer sequence container and Close terminates it on teardown.
package protocol
