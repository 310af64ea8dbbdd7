package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// Tag is a wire field identifier. The enumeration is closed; the
// decoder tolerates unknown tags (they are carried, never interpreted).
type Tag uint8

const (
	TagType         Tag = 0
	TagSenderName   Tag = 1
	TagSenderUid    Tag = 2
	TagReceiverName Tag = 3
	TagReceiverUid  Tag = 4
	TagUserName     Tag = 5
	TagUserUid      Tag = 6
	TagSuccess      Tag = 7
	TagReason       Tag = 8
	TagUsers        Tag = 9
	TagText         Tag = 10
)

// String returns the tag name for logs and test failures.
func (t Tag) String() string {
	switch t {
	case TagType:
		return "Type"
	case TagSenderName:
		return "SenderName"
	case TagSenderUid:
		return "SenderUid"
	case TagReceiverName:
		return "ReceiverName"
	case TagReceiverUid:
		return "ReceiverUid"
	case TagUserName:
		return "UserName"
	case TagUserUid:
		return "UserUid"
	case TagSuccess:
		return "Success"
	case TagReason:
		return "Reason"
	case TagUsers:
		return "Users"
	case TagText:
		return "Text"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Record type values carried in TagType.
const (
	TypeLogin            = "login"
	TypeMessage          = "message"
	TypeNewUser          = "newuser"
	TypeUserDisconnected = "userdisconnected"
	TypeUsers            = "users"
)

// ReceiverAll is the sentinel receiver uid meaning "broadcast to all".
const ReceiverAll = "all"

// Field is one tag/value pair of a Record.
type Field struct {
	Tag   Tag
	Value Value
}

// Record is one complete unit of protocol exchange: a fixed-size
// mapping from field tags to typed values, kept in ascending tag order
// so encoding is deterministic.
type Record struct {
	fields []Field
}

// NewRecord returns an empty record.
func NewRecord() Record { return Record{} }

// NewRecordOfType returns a record with TagType already set.
func NewRecordOfType(typ string) Record {
	var r Record
	r.Set(TagType, Text(typ))
	return r
}

// Set inserts or replaces the value for a tag.
func (r *Record) Set(tag Tag, v Value) {
	i := sort.Search(len(r.fields), func(i int) bool { return r.fields[i].Tag >= tag })
	if i < len(r.fields) && r.fields[i].Tag == tag {
		r.fields[i].Value = v
		return
	}
	r.fields = append(r.fields, Field{})
	copy(r.fields[i+1:], r.fields[i:])
	r.fields[i] = Field{Tag: tag, Value: v}
}

// Get returns the value for a tag and whether it was present.
func (r *Record) Get(tag Tag) (Value, bool) {
	for _, f := range r.fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether the record carries a tag.
func (r *Record) Has(tag Tag) bool {
	_, ok := r.Get(tag)
	return ok
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.fields) }

// Fields returns the fields in tag order. The slice is the record's
// backing storage; do not modify.
func (r *Record) Fields() []Field { return r.fields }

// Clone returns a deep-enough copy: field storage is copied, values are
// shared (values are immutable by convention).
func (r *Record) Clone() Record {
	fields := make([]Field, len(r.fields))
	copy(fields, r.fields)
	return Record{fields: fields}
}

// Type returns the record's TagType text, or "" when absent.
func (r *Record) Type() string {
	v, _ := r.Get(TagType)
	return v.AsText()
}

// Text returns the text payload of a tag, or "" when absent or not text.
func (r *Record) Text(tag Tag) string {
	v, _ := r.Get(tag)
	return v.AsText()
}

// Equal reports whether two records carry the same fields and values.
func (r *Record) Equal(o Record) bool {
	if len(r.fields) != len(o.fields) {
		return false
	}
	for i, f := range r.fields {
		if o.fields[i].Tag != f.Tag || !o.fields[i].Value.Equal(f.Value) {
			return false
		}
	}
	return true
}

// String renders the record for logs and test failures.
func (r *Record) String() string {
	var b strings.Builder
	b.WriteString("Record{")
	for i, f := range r.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", f.Tag, f.Value)
	}
	b.WriteString("}")
	return b.String()
}
