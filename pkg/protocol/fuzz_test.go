package protocol

import (
	"bytes"
	"testing"
)

// FuzzFeed throws arbitrary bytes at the stream decoder and checks the
// properties that hold for any input: no panic, errors are sticky,
// anything decoded re-encodes cleanly, and the outcome is identical
// whatever chunk boundaries the bytes arrive on.
func FuzzFeed(f *testing.F) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(&buf)
	login := NewRecordOfType(TypeLogin)
	login.Set(TagUserName, Text("alice"))
	login.Set(TagUserUid, Text("u1"))
	msg := NewRecordOfType(TypeMessage)
	msg.Set(TagText, Text("the quick brown fox"))
	msg.Set(TagReceiverUid, Text("u2"))
	roster := NewRecordOfType(TypeUsers)
	roster.Set(TagUsers, TextList([]string{"alice\nu1", "bob\nu2"}))
	for _, rec := range []Record{login, msg, roster} {
		if err := enc.Encode(rec); err != nil {
			f.Fatal(err)
		}
		f.Add(append([]byte(nil), buf.Bytes()...))
	}
	if err := enc.Close(); err != nil {
		f.Fatal(err)
	}
	f.Add(buf.Bytes())
	f.Add([]byte{0x9f})
	f.Add([]byte{0x9f, 0xff})
	f.Add([]byte{0x9f, 0xa1, 0x00, 0xf6})
	f.Add([]byte{0x9f, 0xa1, 0x00, 0x7f, 0x63, 'f', 'o', 'o', 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		d := NewStreamDecoder()
		recs, err := d.Feed(data)
		if err != nil {
			if _, again := d.Feed([]byte{0x00}); again != err {
				t.Fatalf("error not sticky: first %v, then %v", err, again)
			}
		}
		for _, rec := range recs {
			e := NewEncoder()
			if reErr := e.AppendRecord(rec); reErr != nil {
				t.Fatalf("decoded record does not re-encode: %v (%s)", reErr, &rec)
			}
		}

		// Byte-at-a-time delivery must reach the same records, error
		// and stream state.
		d2 := NewStreamDecoder()
		var recs2 []Record
		var err2 error
		for i := 0; i < len(data); i++ {
			out, ferr := d2.Feed(data[i : i+1])
			recs2 = append(recs2, out...)
			if ferr != nil {
				err2 = ferr
				break
			}
		}
		if err2 != err {
			t.Fatalf("split decode error %v, whole decode error %v", err2, err)
		}
		if len(recs2) != len(recs) {
			t.Fatalf("split decode emitted %d records, whole decode %d", len(recs2), len(recs))
		}
		for i := range recs {
			if !recs[i].Equal(recs2[i]) {
				t.Fatalf("record %d differs between split and whole decode", i)
			}
		}
		if err == nil && d2.Done() != d.Done() {
			t.Fatalf("split decode Done=%v, whole decode Done=%v", d2.Done(), d.Done())
		}
	})
}
