package gpt

import (
	"testing"

	uuid "github.com/satori/go.uuid"

	"github.com/blocklayer/blocklayer/blockdev"
)

func TestEntryEncodeDecodeRoundTrip(t *testing.T) {
	e, err := newEntry(uuid.NewV4(), uuid.NewV4(), blockdev.Range{First: 10, Last: 20}, 0xff, "data")
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}

	raw := encodeEntry(e)
	if len(raw) != entrySize {
		t.Fatalf("encoded entry is %d bytes, want %d", len(raw), entrySize)
	}

	got := decodeEntry(raw)
	if got.Type != e.Type || got.PartitionGUID != e.PartitionGUID || got.Data != e.Data || got.Attributes != e.Attributes {
		t.Fatalf("decoded entry %+v does not match original %+v", got, e)
	}
	if got.Name() != "data" {
		t.Fatalf("Name() = %q, want data", got.Name())
	}
}

func TestEmptySlotHasNilType(t *testing.T) {
	var e Entry
	if !e.empty() {
		t.Fatal("zero-value Entry should be considered an empty slot")
	}
}

func TestNewEntryNameTooLong(t *testing.T) {
	long := make([]byte, 40)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := newEntry(uuid.NewV4(), uuid.NewV4(), blockdev.Range{First: 0, Last: 1}, 0, string(long)); err == nil {
		t.Fatal("expected an error for a name that doesn't fit in 36 UTF-16 units")
	}
}
