package protocol

import (
	"io"
	"math"
	"sort"
)

// Wire major types (upper three bits of an item header).
const (
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorText   = 3
	majorArray  = 4
	majorMap    = 5
	majorSimple = 7
)

// Simple-value additional info under majorSimple.
const (
	simpleFalse   = 20
	simpleTrue    = 21
	simpleFloat16 = 25
	simpleFloat32 = 26
	simpleFloat64 = 27
)

// infoIndefinite marks an indefinite-length container or the break byte.
const infoIndefinite = 31

const breakByte = 0xff

// Encoder is a binary encoder that appends wire items to an internal
// buffer. It is designed for encoding whole records without
// intermediate allocations.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// Reset resets the encoder to empty state, reusing the underlying buffer.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Bytes returns the encoded bytes. The returned slice is valid until
// the next call to Reset or any append method.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes currently encoded.
func (e *Encoder) Len() int { return len(e.buf) }

// appendHead appends an item header with the given major type and
// unsigned argument, using the shortest form.
func (e *Encoder) appendHead(major byte, v uint64) {
	switch {
	case v < 24:
		e.buf = append(e.buf, major<<5|byte(v))
	case v <= math.MaxUint8:
		e.buf = append(e.buf, major<<5|24, byte(v))
	case v <= math.MaxUint16:
		e.buf = append(e.buf, major<<5|25, byte(v>>8), byte(v))
	case v <= math.MaxUint32:
		e.buf = append(e.buf, major<<5|26,
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	default:
		e.buf = append(e.buf, major<<5|27,
			byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

// AppendUint appends an unsigned integer item.
func (e *Encoder) AppendUint(v uint64) { e.appendHead(majorUint, v) }

// AppendInt appends a signed integer item.
func (e *Encoder) AppendInt(v int64) {
	if v >= 0 {
		e.appendHead(majorUint, uint64(v))
	} else {
		e.appendHead(majorNegInt, uint64(-1-v))
	}
}

// AppendBool appends a boolean item.
func (e *Encoder) AppendBool(v bool) {
	if v {
		e.buf = append(e.buf, majorSimple<<5|simpleTrue)
	} else {
		e.buf = append(e.buf, majorSimple<<5|simpleFalse)
	}
}

// AppendFloat appends a double-precision float item.
func (e *Encoder) AppendFloat(v float64) {
	bits := math.Float64bits(v)
	e.buf = append(e.buf, majorSimple<<5|simpleFloat64,
		byte(bits>>56), byte(bits>>48), byte(bits>>40), byte(bits>>32),
		byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
}

// AppendText appends a definite-length text string item.
func (e *Encoder) AppendText(s string) {
	e.appendHead(majorText, uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// AppendBytes appends a definite-length byte string item.
func (e *Encoder) AppendBytes(b []byte) {
	e.appendHead(majorBytes, uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// AppendTextList appends a definite-length array of text items.
func (e *Encoder) AppendTextList(list []string) {
	e.appendHead(majorArray, uint64(len(list)))
	for _, s := range list {
		e.AppendText(s)
	}
}

// AppendTextMap appends a definite-length text-to-text map item with
// keys in sorted order so encoding is deterministic.
func (e *Encoder) AppendTextMap(m map[string]string) {
	e.appendHead(majorMap, uint64(len(m)))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.AppendText(k)
		e.AppendText(m[k])
	}
}

// AppendValue appends one value item, matched exhaustively by kind.
// An invalid value returns ErrInvalidValue with nothing appended.
func (e *Encoder) AppendValue(v Value) error {
	switch v.Kind() {
	case KindBool:
		e.AppendBool(v.AsBool())
	case KindInt:
		e.AppendInt(v.AsInt())
	case KindUint:
		e.AppendUint(v.AsUint())
	case KindFloat:
		e.AppendFloat(v.AsFloat())
	case KindText:
		e.AppendText(v.AsText())
	case KindBytes:
		e.AppendBytes(v.AsBytes())
	case KindTextList:
		e.AppendTextList(v.AsTextList())
	case KindTextMap:
		e.AppendTextMap(v.AsTextMap())
	default:
		return ErrInvalidValue
	}
	return nil
}

// AppendRecord appends one record as a fixed-length keyed map. The
// record is validated up front: a field holding an invalid value
// rejects the whole record before any bytes are appended, so the
// declared field count can never disagree with the emitted pairs.
func (e *Encoder) AppendRecord(rec Record) error {
	for _, f := range rec.Fields() {
		if !f.Value.IsValid() {
			return ErrInvalidValue
		}
	}
	e.appendHead(majorMap, uint64(rec.Len()))
	for _, f := range rec.Fields() {
		e.AppendUint(uint64(f.Tag))
		if err := e.AppendValue(f.Value); err != nil {
			return err
		}
	}
	return nil
}

// StreamEncoder writes records to an underlying stream. The first
// Encode lazily opens the connection-lifetime sequence container;
// Close terminates it. Not safe for concurrent use: all writes to a
// session go through its owning lane.
type StreamEncoder struct {
	w      io.Writer
	opened bool
	enc    Encoder
}

// NewStreamEncoder creates a stream encoder writing to w.
func NewStreamEncoder(w io.Writer) *StreamEncoder {
	return &StreamEncoder{w: w}
}

// Opened reports whether the outer container has been opened.
func (e *StreamEncoder) Opened() bool { return e.opened }

// Encode writes one record. The record and the container opener are
// flushed in a single Write call.
func (e *StreamEncoder) Encode(rec Record) error {
	e.enc.Reset()
	if !e.opened {
		e.enc.buf = append(e.enc.buf, majorArray<<5|infoIndefinite)
	}
	if err := e.enc.AppendRecord(rec); err != nil {
		return err
	}
	if _, err := e.w.Write(e.enc.Bytes()); err != nil {
		return err
	}
	e.opened = true
	return nil
}

// Close terminates the outer container if it was opened. It does not
// close the underlying writer.
func (e *StreamEncoder) Close() error {
	if !e.opened {
		return nil
	}
	e.opened = false
	_, err := e.w.Write([]byte{breakByte})
	return err
}
