package protocol

import "errors"

// Allocation limits to prevent DoS via malicious length prefixes.
const (
	// DefaultMaxAllocation is the maximum size of a single decoded
	// text or byte string item (1MB). Chat records are small; anything
	// near this limit is hostile input.
	DefaultMaxAllocation = 1 * 1024 * 1024

	// MaxCollectionCount is the maximum number of entries in a decoded
	// collection (record map, text list, text map).
	MaxCollectionCount = 10_000
)

// Decoding errors. All of them are protocol errors: once Feed returns
// one, the stream is invalid and no further records are trusted.
var (
	ErrStreamHeader       = errors.New("protocol: stream must open with a sequence container")
	ErrFrameHeader        = errors.New("protocol: record must be a fixed-length keyed map")
	ErrFieldKey           = errors.New("protocol: field tag must be a small unsigned integer")
	ErrValueShape         = errors.New("protocol: value has an unsupported shape")
	ErrIntegerRange       = errors.New("protocol: integer exceeds representable range")
	ErrMalformedHeader    = errors.New("protocol: malformed item header")
	ErrStreamClosed       = errors.New("protocol: data received after stream close")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
)

// Encoding errors.
var (
	ErrInvalidValue = errors.New("protocol: record contains an invalid value")
)

// errShortData is an internal signal that the buffer does not yet hold a
// complete item. It never escapes Feed; the decoder simply waits for
// more bytes.
var errShortData = errors.New("protocol: short data")
