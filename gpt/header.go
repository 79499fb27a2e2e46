package gpt

import (
	"bytes"
	"hash/crc32"

	uuid "github.com/satori/go.uuid"

	"github.com/blocklayer/blocklayer/blockdev"
	"github.com/blocklayer/blocklayer/codec"
)

const (
	headerSize = 92
	entrySize  = 128
	revision   = 0x00010000

	minEntriesBytes = 16 * 1024
)

var signature = []byte("EFI PART")

// Header is the 92-byte on-disk GPT header, one copy of which lives at
// block 1 (primary) and one at the last block (secondary).
type Header struct {
	Revision          uint32
	DeclaredSize      uint32
	HeaderCRC32       uint32
	Reserved          uint32
	ThisLBA           uint64
	OtherLBA          uint64
	Usable            blockdev.Range
	DiskGUID          uuid.UUID
	EntriesLBA        uint64
	EntriesCount      uint32
	DeclaredEntrySize uint32
	EntriesCRC32      uint32
}

func encodeHeader(h Header) []byte {
	w := codec.NewWriter(headerSize)
	w.Bytes(signature)
	w.Uint32(revision)
	w.Uint32(headerSize)
	w.Uint32(h.HeaderCRC32)
	w.Uint32(0) // reserved
	w.Uint64(h.ThisLBA)
	w.Uint64(h.OtherLBA)
	w.Uint64(h.Usable.First)
	w.Uint64(h.Usable.Last)
	w.Bytes(h.DiskGUID.Bytes())
	w.Uint64(h.EntriesLBA)
	w.Uint32(h.EntriesCount)
	w.Uint32(entrySize)
	w.Uint32(h.EntriesCRC32)
	return w.Done()
}

// decodeHeader parses the first headerSize bytes of raw into a Header.
// It does not validate anything: signature, revision, size, and CRC
// checks are loadTable's responsibility, since an absent signature means
// "unformatted", not "malformed".
func decodeHeader(raw []byte) Header {
	r := codec.NewReader(raw[:headerSize])
	r.Skip(8) // signature
	revision := r.Uint32()
	declaredSize := r.Uint32()
	crc := r.Uint32()
	reserved := r.Uint32()
	this := r.Uint64()
	other := r.Uint64()
	first := r.Uint64()
	last := r.Uint64()
	guidBytes := r.Bytes(16)
	entriesLBA := r.Uint64()
	entriesCount := r.Uint32()
	declaredEntrySize := r.Uint32()
	entriesCRC := r.Uint32()

	guid, _ := uuid.FromBytes(guidBytes)

	return Header{
		Revision:          revision,
		DeclaredSize:      declaredSize,
		HeaderCRC32:       crc,
		Reserved:          reserved,
		ThisLBA:           this,
		OtherLBA:          other,
		Usable:            blockdev.Range{First: first, Last: last},
		DiskGUID:          guid,
		EntriesLBA:        entriesLBA,
		EntriesCount:      entriesCount,
		DeclaredEntrySize: declaredEntrySize,
		EntriesCRC32:      entriesCRC,
	}
}

func headerHasSignature(raw []byte) bool {
	return len(raw) >= 8 && bytes.Equal(raw[:8], signature)
}

func headerChecksum(h Header) uint32 {
	clean := h
	clean.HeaderCRC32 = 0
	return crc32.ChecksumIEEE(encodeHeader(clean))
}

// entryArrayBlocks returns K, the number of physical blocks occupied by
// an entries array holding count 128-byte entries, for a device whose
// block size is blockSize.
func entryArrayBlocks(count uint32, blockSize int) uint64 {
	size := int(count) * entrySize
	if size < minEntriesBytes {
		size = minEntriesBytes
	}
	return uint64((size + blockSize - 1) / blockSize)
}
