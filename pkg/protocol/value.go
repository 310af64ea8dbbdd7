package protocol

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind identifies the runtime shape of a Value. The set is closed:
// every kind is matched exhaustively at both encode and decode sites.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindText
	KindBytes
	KindTextList
	KindTextMap
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindUint:
		return "Uint"
	case KindFloat:
		return "Float"
	case KindText:
		return "Text"
	case KindBytes:
		return "Bytes"
	case KindTextList:
		return "TextList"
	case KindTextMap:
		return "TextMap"
	default:
		return "Invalid"
	}
}

// Value is a closed tagged union over the value shapes the wire format
// supports. The zero Value is invalid; encoding a record that contains
// one fails before any bytes are written.
//
// Decoding favors the signed kind: a wire integer that fits in int64
// decodes as KindInt, and only larger magnitudes decode as KindUint.
type Value struct {
	kind Kind
	num  uint64
	str  string
	raw  []byte
	list []string
	dict map[string]string
}

// Bool returns a boolean value.
func Bool(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// Int returns a signed integer value.
func Int(v int64) Value { return Value{kind: KindInt, num: uint64(v)} }

// Uint returns an unsigned integer value.
func Uint(v uint64) Value { return Value{kind: KindUint, num: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, num: math.Float64bits(v)} }

// Text returns a UTF-8 text value.
func Text(v string) Value { return Value{kind: KindText, str: v} }

// Bytes returns a raw byte string value. The slice is retained, not copied.
func Bytes(v []byte) Value { return Value{kind: KindBytes, raw: v} }

// TextList returns a list-of-text value. The slice is retained, not copied.
func TextList(v []string) Value { return Value{kind: KindTextList, list: v} }

// TextMap returns a text-to-text mapping value. The map is retained, not copied.
func TextMap(v map[string]string) Value { return Value{kind: KindTextMap, dict: v} }

// Kind returns the value's shape.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether the value holds one of the supported shapes.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsBool returns the boolean payload, or false for any other kind.
func (v Value) AsBool() bool { return v.kind == KindBool && v.num != 0 }

// AsInt returns the signed integer payload, or 0 for any other kind.
func (v Value) AsInt() int64 {
	if v.kind != KindInt {
		return 0
	}
	return int64(v.num)
}

// AsUint returns the unsigned integer payload, or 0 for any other kind.
func (v Value) AsUint() uint64 {
	if v.kind != KindUint {
		return 0
	}
	return v.num
}

// AsFloat returns the floating point payload, or 0 for any other kind.
func (v Value) AsFloat() float64 {
	if v.kind != KindFloat {
		return 0
	}
	return math.Float64frombits(v.num)
}

// AsText returns the text payload, or "" for any other kind.
func (v Value) AsText() string {
	if v.kind != KindText {
		return ""
	}
	return v.str
}

// AsBytes returns the byte string payload, or nil for any other kind.
// The returned slice is the value's backing storage; do not modify.
func (v Value) AsBytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	return v.raw
}

// AsTextList returns the list-of-text payload, or nil for any other kind.
func (v Value) AsTextList() []string {
	if v.kind != KindTextList {
		return nil
	}
	return v.list
}

// AsTextMap returns the text-to-text payload, or nil for any other kind.
func (v Value) AsTextMap() map[string]string {
	if v.kind != KindTextMap {
		return nil
	}
	return v.dict
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool, KindInt, KindUint, KindFloat:
		return v.num == o.num
	case KindText:
		return v.str == o.str
	case KindBytes:
		return string(v.raw) == string(o.raw)
	case KindTextList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case KindTextMap:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for k, val := range v.dict {
			if ov, ok := o.dict[k]; !ok || ov != val {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value for logs and test failures.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("Bool(%v)", v.AsBool())
	case KindInt:
		return fmt.Sprintf("Int(%d)", v.AsInt())
	case KindUint:
		return fmt.Sprintf("Uint(%d)", v.AsUint())
	case KindFloat:
		return fmt.Sprintf("Float(%g)", v.AsFloat())
	case KindText:
		return fmt.Sprintf("Text(%q)", v.str)
	case KindBytes:
		return fmt.Sprintf("Bytes(%d bytes)", len(v.raw))
	case KindTextList:
		return fmt.Sprintf("TextList(%q)", v.list)
	case KindTextMap:
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("TextMap{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q: %q", k, v.dict[k])
		}
		b.WriteString("}")
		return b.String()
	default:
		return "Invalid"
	}
}
