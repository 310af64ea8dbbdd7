package protocol

import (
	"math"

	"github.com/x448/float16"
)

// Low-level item readers. Each function parses one complete item from
// the front of buf and returns the number of bytes consumed. When buf
// does not yet hold the complete item, errShortData is returned and
// nothing is consumed, so the caller can retry once more bytes arrive.

// readHead parses an item header: major type, additional-info byte and
// the decoded unsigned argument. For info 31 (indefinite length or the
// break byte) the argument is zero and the caller inspects info.
func readHead(buf []byte) (major, info byte, arg uint64, n int, err error) {
	if len(buf) == 0 {
		return 0, 0, 0, 0, errShortData
	}
	b := buf[0]
	major = b >> 5
	info = b & 0x1f
	switch {
	case info < 24:
		return major, info, uint64(info), 1, nil
	case info == 24:
		if len(buf) < 2 {
			return 0, 0, 0, 0, errShortData
		}
		return major, info, uint64(buf[1]), 2, nil
	case info == 25:
		if len(buf) < 3 {
			return 0, 0, 0, 0, errShortData
		}
		return major, info, uint64(buf[1])<<8 | uint64(buf[2]), 3, nil
	case info == 26:
		if len(buf) < 5 {
			return 0, 0, 0, 0, errShortData
		}
		arg = uint64(buf[1])<<24 | uint64(buf[2])<<16 | uint64(buf[3])<<8 | uint64(buf[4])
		return major, info, arg, 5, nil
	case info == 27:
		if len(buf) < 9 {
			return 0, 0, 0, 0, errShortData
		}
		arg = uint64(buf[1])<<56 | uint64(buf[2])<<48 | uint64(buf[3])<<40 | uint64(buf[4])<<32 |
			uint64(buf[5])<<24 | uint64(buf[6])<<16 | uint64(buf[7])<<8 | uint64(buf[8])
		return major, info, arg, 9, nil
	case info == infoIndefinite:
		return major, info, 0, 1, nil
	default: // 28..30 are reserved
		return 0, 0, 0, 0, ErrMalformedHeader
	}
}

// readString parses a text or byte string of the given major type,
// concatenating chunks when the encoder split the value into an
// indefinite-length sequence of definite chunks.
func readString(buf []byte, wantMajor byte) ([]byte, int, error) {
	major, info, arg, n, err := readHead(buf)
	if err != nil {
		return nil, 0, err
	}
	if major != wantMajor {
		return nil, 0, ErrValueShape
	}
	if info != infoIndefinite {
		if arg > DefaultMaxAllocation {
			return nil, 0, ErrAllocationTooLarge
		}
		end := n + int(arg)
		if len(buf) < end {
			return nil, 0, errShortData
		}
		out := make([]byte, arg)
		copy(out, buf[n:end])
		return out, end, nil
	}
	// Chunked: definite chunks of the same major type until the break.
	pos := n
	var out []byte
	for {
		if pos >= len(buf) {
			return nil, 0, errShortData
		}
		if buf[pos] == breakByte {
			return out, pos + 1, nil
		}
		cMajor, cInfo, cArg, cn, err := readHead(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		if cMajor != wantMajor || cInfo == infoIndefinite {
			return nil, 0, ErrValueShape
		}
		if uint64(len(out))+cArg > DefaultMaxAllocation {
			return nil, 0, ErrAllocationTooLarge
		}
		end := pos + cn + int(cArg)
		if len(buf) < end {
			return nil, 0, errShortData
		}
		out = append(out, buf[pos+cn:end]...)
		pos = end
	}
}

// readText parses a text string item, chunked or definite.
func readText(buf []byte) (string, int, error) {
	b, n, err := readString(buf, majorText)
	if err != nil {
		return "", 0, err
	}
	return string(b), n, nil
}

// readTextList parses an array item whose elements must all be text.
func readTextList(buf []byte) ([]string, int, error) {
	major, info, arg, n, err := readHead(buf)
	if err != nil {
		return nil, 0, err
	}
	if major != majorArray {
		return nil, 0, ErrValueShape
	}
	pos := n
	var out []string
	if info == infoIndefinite {
		for {
			if pos >= len(buf) {
				return nil, 0, errShortData
			}
			if buf[pos] == breakByte {
				return out, pos + 1, nil
			}
			if len(out) >= MaxCollectionCount {
				return nil, 0, ErrCollectionTooLarge
			}
			s, sn, err := readText(buf[pos:])
			if err != nil {
				return nil, 0, err
			}
			out = append(out, s)
			pos += sn
		}
	}
	if arg > MaxCollectionCount {
		return nil, 0, ErrCollectionTooLarge
	}
	out = make([]string, 0, arg)
	for i := uint64(0); i < arg; i++ {
		s, sn, err := readText(buf[pos:])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
		pos += sn
	}
	return out, pos, nil
}

// readTextMap parses a map item whose keys and values must all be text.
func readTextMap(buf []byte) (map[string]string, int, error) {
	major, info, arg, n, err := readHead(buf)
	if err != nil {
		return nil, 0, err
	}
	if major != majorMap {
		return nil, 0, ErrValueShape
	}
	pos := n
	out := make(map[string]string)
	readPair := func() error {
		k, kn, err := readText(buf[pos:])
		if err != nil {
			return err
		}
		pos += kn
		v, vn, err := readText(buf[pos:])
		if err != nil {
			return err
		}
		pos += vn
		out[k] = v
		return nil
	}
	if info == infoIndefinite {
		for {
			if pos >= len(buf) {
				return nil, 0, errShortData
			}
			if buf[pos] == breakByte {
				return out, pos + 1, nil
			}
			if len(out) >= MaxCollectionCount {
				return nil, 0, ErrCollectionTooLarge
			}
			if err := readPair(); err != nil {
				return nil, 0, err
			}
		}
	}
	if arg > MaxCollectionCount {
		return nil, 0, ErrCollectionTooLarge
	}
	for i := uint64(0); i < arg; i++ {
		if err := readPair(); err != nil {
			return nil, 0, err
		}
	}
	return out, pos, nil
}

// readValue parses one value item, dispatching on its wire shape. The
// supported shapes form a closed set; anything else is ErrValueShape.
func readValue(buf []byte) (Value, int, error) {
	major, info, arg, n, err := readHead(buf)
	if err != nil {
		return Value{}, 0, err
	}
	switch major {
	case majorUint:
		if arg > math.MaxInt64 {
			return Uint(arg), n, nil
		}
		return Int(int64(arg)), n, nil
	case majorNegInt:
		if arg > math.MaxInt64 {
			return Value{}, 0, ErrIntegerRange
		}
		return Int(-1 - int64(arg)), n, nil
	case majorBytes:
		b, bn, err := readString(buf, majorBytes)
		if err != nil {
			return Value{}, 0, err
		}
		return Bytes(b), bn, nil
	case majorText:
		s, sn, err := readText(buf)
		if err != nil {
			return Value{}, 0, err
		}
		return Text(s), sn, nil
	case majorArray:
		list, ln, err := readTextList(buf)
		if err != nil {
			return Value{}, 0, err
		}
		return TextList(list), ln, nil
	case majorMap:
		m, mn, err := readTextMap(buf)
		if err != nil {
			return Value{}, 0, err
		}
		return TextMap(m), mn, nil
	case majorSimple:
		switch info {
		case simpleFalse:
			return Bool(false), n, nil
		case simpleTrue:
			return Bool(true), n, nil
		case simpleFloat16:
			return Float(float64(float16.Frombits(uint16(arg)).Float32())), n, nil
		case simpleFloat32:
			return Float(float64(math.Float32frombits(uint32(arg)))), n, nil
		case simpleFloat64:
			return Float(math.Float64frombits(arg)), n, nil
		default:
			return Value{}, 0, ErrValueShape
		}
	default:
		return Value{}, 0, ErrValueShape
	}
}
