package protocol

import "math"

// decodeState enumerates the incremental parse states, in stream order.
type decodeState uint8

const (
	// stateStreamStart expects the opening of the connection-lifetime
	// sequence container.
	stateStreamStart decodeState = iota
	// stateFrameHeader expects the opening of one fixed-length keyed
	// map, or the stream close.
	stateFrameHeader
	// stateFieldKey expects an integer field tag.
	stateFieldKey
	// stateFieldValue expects one typed value item.
	stateFieldValue
	// stateDone is the clean end of stream.
	stateDone
	// stateFailed is the sticky protocol-error state.
	stateFailed
)

// StreamDecoder incrementally decodes one connection's record stream.
// Feed appends bytes and emits every record that became complete; an
// item split across reads is left buffered and parsing resumes exactly
// where it stopped on the next call. Not safe for concurrent use: a
// session's stream is only ever fed from its read loop.
type StreamDecoder struct {
	buf   []byte
	state decodeState
	err   error

	// outerRemaining counts frames left in a definite-length outer
	// container; -1 while inside an indefinite one.
	outerRemaining int

	cur       Record
	remaining int
	curTag    Tag
}

// NewStreamDecoder creates a decoder positioned at the stream start.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{outerRemaining: -1}
}

// Done reports whether the peer closed its sending side cleanly.
func (d *StreamDecoder) Done() bool { return d.state == stateDone }

// Err returns the sticky protocol error, if any.
func (d *StreamDecoder) Err() error { return d.err }

// Feed appends p to the decode buffer and returns every record that is
// now fully decoded, in stream order. A non-nil error is a protocol
// error: the stream is invalid and no further records will be emitted.
func (d *StreamDecoder) Feed(p []byte) ([]Record, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.buf = append(d.buf, p...)

	var out []Record
	pos := 0
	for {
		if d.state == stateDone {
			if pos < len(d.buf) {
				d.fail(ErrStreamClosed)
				d.buf = nil
				return out, d.err
			}
			break
		}
		rec, emitted, n, err := d.step(d.buf[pos:])
		if err == errShortData {
			break
		}
		if err != nil {
			d.fail(err)
			d.buf = nil
			return out, d.err
		}
		pos += n
		if emitted {
			out = append(out, rec)
		}
	}
	// Retain only the unconsumed tail.
	if pos > 0 {
		d.buf = append(d.buf[:0], d.buf[pos:]...)
	}
	return out, nil
}

// step attempts to consume one item for the current state. It returns
// the emitted record (when one completed), the bytes consumed, and
// errShortData when buf does not yet hold the next complete item.
func (d *StreamDecoder) step(buf []byte) (rec Record, emitted bool, n int, err error) {
	switch d.state {
	case stateStreamStart:
		major, info, arg, hn, err := readHead(buf)
		if err != nil {
			return Record{}, false, 0, err
		}
		if major != majorArray {
			return Record{}, false, 0, ErrStreamHeader
		}
		if info == infoIndefinite {
			d.outerRemaining = -1
		} else {
			if arg > math.MaxInt32 {
				return Record{}, false, 0, ErrCollectionTooLarge
			}
			d.outerRemaining = int(arg)
		}
		if d.outerRemaining == 0 {
			d.state = stateDone
		} else {
			d.state = stateFrameHeader
		}
		return Record{}, false, hn, nil

	case stateFrameHeader:
		if d.outerRemaining == -1 && len(buf) > 0 && buf[0] == breakByte {
			d.state = stateDone
			return Record{}, false, 1, nil
		}
		major, info, arg, hn, err := readHead(buf)
		if err != nil {
			return Record{}, false, 0, err
		}
		// A record map must declare its field count up front.
		if major != majorMap || info == infoIndefinite {
			return Record{}, false, 0, ErrFrameHeader
		}
		if arg > MaxCollectionCount {
			return Record{}, false, 0, ErrCollectionTooLarge
		}
		d.cur = NewRecord()
		d.remaining = int(arg)
		if d.remaining == 0 {
			return d.finishRecord(hn)
		}
		d.state = stateFieldKey
		return Record{}, false, hn, nil

	case stateFieldKey:
		major, info, arg, hn, err := readHead(buf)
		if err != nil {
			return Record{}, false, 0, err
		}
		if major != majorUint || info == infoIndefinite || arg > math.MaxUint8 {
			return Record{}, false, 0, ErrFieldKey
		}
		d.curTag = Tag(arg)
		d.state = stateFieldValue
		return Record{}, false, hn, nil

	case stateFieldValue:
		v, vn, err := readValue(buf)
		if err != nil {
			return Record{}, false, 0, err
		}
		d.cur.Set(d.curTag, v)
		d.remaining--
		if d.remaining == 0 {
			return d.finishRecord(vn)
		}
		d.state = stateFieldKey
		return Record{}, false, vn, nil

	default:
		return Record{}, false, 0, d.err
	}
}

// finishRecord emits the completed record and advances the outer
// container bookkeeping.
func (d *StreamDecoder) finishRecord(consumed int) (Record, bool, int, error) {
	rec := d.cur
	d.cur = Record{}
	if d.outerRemaining > 0 {
		d.outerRemaining--
	}
	if d.outerRemaining == 0 {
		d.state = stateDone
	} else {
		d.state = stateFrameHeader
	}
	return rec, true, consumed, nil
}

func (d *StreamDecoder) fail(err error) {
	d.state = stateFailed
	d.err = err
}
