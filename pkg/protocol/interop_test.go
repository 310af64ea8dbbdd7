package protocol

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// The wire format is plain CBOR: records emitted by our encoder must be
// readable by an independent implementation.
func TestEncodedRecordsAreValidCBOR(t *testing.T) {
	rec := NewRecordOfType(TypeMessage)
	rec.Set(TagSenderName, Text("alice"))
	rec.Set(TagSuccess, Bool(true))
	rec.Set(TagUsers, TextList([]string{"alice\nu1"}))
	rec.Set(TagText, Text("hi"))

	e := NewEncoder()
	if err := e.AppendRecord(rec); err != nil {
		t.Fatalf("AppendRecord() error: %v", err)
	}

	var decoded map[uint64]any
	if err := cbor.Unmarshal(e.Bytes(), &decoded); err != nil {
		t.Fatalf("independent decoder rejected our encoding: %v", err)
	}
	if len(decoded) != rec.Len() {
		t.Fatalf("independent decoder saw %d fields, want %d", len(decoded), rec.Len())
	}
	if got := decoded[uint64(TagType)]; got != TypeMessage {
		t.Errorf("Type field = %v, want %q", got, TypeMessage)
	}
	if got := decoded[uint64(TagSenderName)]; got != "alice" {
		t.Errorf("SenderName field = %v, want %q", got, "alice")
	}
	if got := decoded[uint64(TagSuccess)]; got != true {
		t.Errorf("Success field = %v, want true", got)
	}
}

// And symmetrically: records produced by an independent encoder must
// decode through our stream machinery.
func TestDecoderAcceptsIndependentEncoding(t *testing.T) {
	payload, err := cbor.Marshal(map[uint64]any{
		uint64(TagType): TypeLogin,
		uint64(TagUserName): "bob",
		uint64(TagUserUid): "u2",
	})
	if err != nil {
		t.Fatalf("cbor.Marshal() error: %v", err)
	}

	d := NewStreamDecoder()
	recs, err := d.Feed(append([]byte{majorArray<<5 | infoIndefinite}, payload...))
	if err != nil {
		t.Fatalf("Feed() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("emitted %d records, want 1", len(recs))
	}
	if recs[0].Type() != TypeLogin || recs[0].Text(TagUserName) != "bob" || recs[0].Text(TagUserUid) != "u2" {
		t.Errorf("decoded record mismatch: %s", &recs[0])
	}
}
