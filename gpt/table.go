package gpt

import (
	"fmt"
	"hash/crc32"

	uuid "github.com/satori/go.uuid"

	"github.com/blocklayer/blocklayer/blockdev"
)

// table is one on-disk copy (primary or secondary) of a GPT, resolved
// and validated by loadTable.
type table struct {
	header  Header
	entries []Entry
}

// loadTable reads and validates the header copy at physical block i. It
// returns (nil, nil) when the block has no GPT signature at all — an
// unformatted disk is not an error.
func loadTable(device blockdev.Device, i uint64) (*table, error) {
	raw, err := device.Get(i)
	if err != nil {
		return nil, fmt.Errorf("gpt: reading header at block %d: %w", i, err)
	}
	if !headerHasSignature(raw) {
		return nil, nil
	}

	hdr := decodeHeader(raw)

	if hdr.Revision != revision || hdr.DeclaredSize != headerSize || hdr.DeclaredEntrySize != entrySize || hdr.Reserved != 0 {
		return nil, fmt.Errorf("gpt: header at block %d: %w", i, blockdev.ErrUnsupported)
	}
	if headerChecksum(hdr) != hdr.HeaderCRC32 {
		return nil, fmt.Errorf("gpt: header at block %d: %w", i, blockdev.ErrCorrupted)
	}

	length := device.Len()
	wantOther := length - 1
	if i != 1 {
		wantOther = 1
	}
	if hdr.ThisLBA != i || hdr.OtherLBA != wantOther {
		return nil, fmt.Errorf("gpt: header at block %d: %w", i, blockdev.ErrOutOfBounds)
	}

	k := entryArrayBlocks(hdr.EntriesCount, device.BlockSize())
	if length < 2+k+2+k {
		return nil, fmt.Errorf("gpt: header at block %d: %w", i, blockdev.ErrOutOfBounds)
	}
	urange := blockdev.Range{First: 2 + k, Last: length - 2 - k}
	if hdr.Usable.First > hdr.Usable.Last || !urange.Contains(hdr.Usable) {
		return nil, fmt.Errorf("gpt: header at block %d: %w", i, blockdev.ErrOutOfBounds)
	}

	var erange blockdev.Range
	if i == 1 {
		erange = blockdev.Range{First: 2, Last: 2 + k - 1}
	} else {
		erange = blockdev.Range{First: length - 1 - k, Last: length - 2}
	}
	if !erange.Includes(hdr.EntriesLBA) {
		return nil, fmt.Errorf("gpt: header at block %d: %w", i, blockdev.ErrOutOfBounds)
	}

	entriesRaw := make([]byte, 0, k*uint64(device.BlockSize()))
	for b := uint64(0); b < k; b++ {
		blk, err := device.Get(hdr.EntriesLBA + b)
		if err != nil {
			return nil, fmt.Errorf("gpt: reading entries at block %d: %w", hdr.EntriesLBA+b, err)
		}
		entriesRaw = append(entriesRaw, blk...)
	}

	entryBytes := int(hdr.EntriesCount) * entrySize
	if crc32.ChecksumIEEE(entriesRaw[:entryBytes]) != hdr.EntriesCRC32 {
		return nil, fmt.Errorf("gpt: entries at block %d: %w", hdr.EntriesLBA, blockdev.ErrCorrupted)
	}

	entries := make([]Entry, 0, hdr.EntriesCount)
	for e := 0; e < int(hdr.EntriesCount); e++ {
		ent := decodeEntry(entriesRaw[e*entrySize : (e+1)*entrySize])
		if ent.empty() {
			continue
		}
		entries = append(entries, ent)
	}

	if err := validateEntries(hdr.Usable, entries); err != nil {
		return nil, err
	}

	return &table{header: hdr, entries: entries}, nil
}

// validateEntries enforces the GPT entry invariants: well-ordered ranges
// contained in usable, no two entries' ranges overlapping (by the same
// endpoint-inclusion test as blockdev.Range.Overlaps, applied in both
// directions for every pair), and no two
// entries sharing a partition GUID.
func validateEntries(usable blockdev.Range, entries []Entry) error {
	seen := make(map[uuid.UUID]bool, len(entries))
	for idx, e := range entries {
		if e.Data.First > e.Data.Last {
			return fmt.Errorf("gpt: entry %d: %w", idx, blockdev.ErrOutOfBounds)
		}
		if !usable.Contains(e.Data) {
			return fmt.Errorf("gpt: entry %d: %w", idx, blockdev.ErrOutOfBounds)
		}
		for j := idx + 1; j < len(entries); j++ {
			if e.Data.Overlaps(entries[j].Data) || entries[j].Data.Overlaps(e.Data) {
				return fmt.Errorf("gpt: entries %d and %d overlap: %w", idx, j, blockdev.ErrOutOfBounds)
			}
		}
		if seen[e.PartitionGUID] {
			return fmt.Errorf("gpt: duplicate partition guid: %w", blockdev.ErrConflict)
		}
		seen[e.PartitionGUID] = true
	}
	return nil
}
