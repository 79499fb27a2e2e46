package codec

import (
	"bytes"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.Uint16(0xBEEF)
	w.Uint32(0xDEADBEEF)
	w.Uint64(0x1122334455667788)
	w.Bytes([]byte("EFI PART"))
	w.Pad(4)

	buf := w.Done()
	if len(buf) != 2+4+8+8+4 {
		t.Fatalf("unexpected encoded length %d", len(buf))
	}

	r := NewReader(buf)
	if got := r.Uint16(); got != 0xBEEF {
		t.Fatalf("Uint16 = %x", got)
	}
	if got := r.Uint32(); got != 0xDEADBEEF {
		t.Fatalf("Uint32 = %x", got)
	}
	if got := r.Uint64(); got != 0x1122334455667788 {
		t.Fatalf("Uint64 = %x", got)
	}
	if got := r.Bytes(8); !bytes.Equal(got, []byte("EFI PART")) {
		t.Fatalf("Bytes = %q", got)
	}
	r.Skip(4)
}

func TestReadPastEndPanics(t *testing.T) {
	r := NewReader(make([]byte, 2))
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.Uint32()
}

func TestUTF16NameRoundTrip(t *testing.T) {
	units, err := EncodeUTF16Name("foo", 36)
	if err != nil {
		t.Fatalf("EncodeUTF16Name: %v", err)
	}
	if len(units) != 36 {
		t.Fatalf("expected 36 units, got %d", len(units))
	}
	if got := DecodeUTF16Name(units); got != "foo" {
		t.Fatalf("DecodeUTF16Name = %q, want foo", got)
	}
}

func TestUTF16NameTooLong(t *testing.T) {
	long := make([]byte, 40)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := EncodeUTF16Name(string(long), 36); err == nil {
		t.Fatal("expected error for too-long name")
	}
}
