// Package gpt implements the partition-table layer: a GUID Partition
// Table with redundant head/tail copies, parsed and emitted bit-exact,
// sitting on top of any blockdev.Device and exposing its partitions as
// their own sub-devices.
package gpt

import (
	"fmt"
	"hash/crc32"

	"github.com/sirupsen/logrus"

	uuid "github.com/satori/go.uuid"

	"github.com/blocklayer/blocklayer/blockdev"
)

// DefaultEntriesCount is the entry-array capacity used by Format when the
// caller doesn't need a different one; 128 slots is the conventional GPT
// default.
const DefaultEntriesCount = 128

// Disk is an in-memory view of a loaded or newly formatted GPT, backed
// by a device. Entries are kept in load/insertion order; Disk never
// reorders them on its own.
type Disk struct {
	device       blockdev.Device
	guid         uuid.UUID
	entriesCount uint32
	usable       blockdev.Range
	entries      []Entry
}

// Load parses device as a GPT disk. It returns (nil, nil) if neither
// header copy carries the GPT signature (an unformatted disk). A copy
// that fails validation is dropped in favor of a valid peer; an error is
// returned only when neither copy is usable.
func Load(device blockdev.Device) (*Disk, error) {
	length := device.Len()
	primary, errP := loadTable(device, 1)
	secondary, errS := loadTable(device, length-1)

	switch {
	case errP == nil && errS == nil && primary == nil && secondary == nil:
		return nil, nil
	case primary != nil && secondary != nil:
		if primary.header.DiskGUID != secondary.header.DiskGUID {
			return nil, fmt.Errorf("gpt: primary/secondary disk_guid disagree: %w", blockdev.ErrConflict)
		}
		if primary.header.EntriesCRC32 != secondary.header.EntriesCRC32 {
			return nil, fmt.Errorf("gpt: primary/secondary entries_crc32 disagree: %w", blockdev.ErrConflict)
		}
		return newDisk(device, primary), nil
	case primary != nil:
		logrus.Warn("gpt: secondary header copy unusable, recovered from primary")
		return newDisk(device, primary), nil
	case secondary != nil:
		logrus.Warn("gpt: primary header copy unusable, recovered from secondary")
		return newDisk(device, secondary), nil
	case errP != nil:
		return nil, errP
	default:
		return nil, errS
	}
}

func newDisk(device blockdev.Device, t *table) *Disk {
	return &Disk{
		device:       device,
		guid:         t.header.DiskGUID,
		entriesCount: t.header.EntriesCount,
		usable:       t.header.Usable,
		entries:      t.entries,
	}
}

// Format writes a brand-new, empty GPT to device with a random disk GUID
// and entriesCount entry slots, and returns the resulting Disk.
func Format(device blockdev.Device, entriesCount uint32) (*Disk, error) {
	d := &Disk{
		device:       device,
		guid:         uuid.NewV4(),
		entriesCount: entriesCount,
	}
	if err := d.save(nil, nil); err != nil {
		return nil, err
	}
	return d, nil
}

// Guid returns the disk's GUID.
func (d *Disk) Guid() uuid.UUID { return d.guid }

// Partitions returns a live view over every non-empty entry, in the same
// order Disk holds them.
func (d *Disk) Partitions() []*Partition {
	out := make([]*Partition, len(d.entries))
	for i, e := range d.entries {
		out[i] = &Partition{device: d.device, entry: e}
	}
	return out
}

// Holes returns the gaps between entries within the usable range, in the
// order entries are stored — it does NOT sort entries first. An out-of-
// order entry set can therefore surface holes in a different order than
// a caller expects; callers wanting a packed layout must sort
// Partitions() themselves before computing gaps from it. Non-positive
// candidate intervals (an entry that starts at or before the current
// scan position) are silently skipped rather than emitted as degenerate
// ranges.
func (d *Disk) Holes() []blockdev.Range {
	var holes []blockdev.Range
	cursor := d.usable.First
	for _, e := range d.entries {
		if e.Data.First > cursor {
			holes = append(holes, blockdev.Range{First: cursor, Last: e.Data.First - 1})
		}
		if e.Data.Last+1 > cursor {
			cursor = e.Data.Last + 1
		}
	}
	if cursor <= d.usable.Last {
		holes = append(holes, blockdev.Range{First: cursor, Last: d.usable.Last})
	}
	return holes
}

// Add appends a new partition entry and persists the updated table. On
// save failure, the in-memory entry list is rolled back to its state
// before the call.
func (d *Disk) Add(typeGUID uuid.UUID, data blockdev.Range, attributes uint64, name string) error {
	entry, err := newEntry(typeGUID, uuid.NewV4(), data, attributes, name)
	if err != nil {
		return err
	}
	if uint32(len(d.entries)+1) > d.entriesCount {
		return fmt.Errorf("gpt: entry array has no free slots: %w", blockdev.ErrOutOfBounds)
	}

	before := d.entries
	d.entries = append(append([]Entry{}, d.entries...), entry)

	if err := d.save(&d.usable, d.entries); err != nil {
		d.entries = before
		return err
	}
	return nil
}

// save implements the GPT save protocol: serialize entries, compute the
// entries CRC, derive usable from usable (or the maximal range if nil),
// build both header copies, and write primary header, primary entries,
// secondary entries, secondary header in that order — so a crash mid-
// save always leaves at least one self-consistent copy.
func (d *Disk) save(usable *blockdev.Range, entries []Entry) error {
	entriesBuf := make([]byte, 0, int(d.entriesCount)*entrySize)
	for _, e := range entries {
		entriesBuf = append(entriesBuf, encodeEntry(e)...)
	}
	for i := len(entries); i < int(d.entriesCount); i++ {
		entriesBuf = append(entriesBuf, make([]byte, entrySize)...)
	}
	entriesCRC := crc32.ChecksumIEEE(entriesBuf)

	blockSize := d.device.BlockSize()
	k := entryArrayBlocks(d.entriesCount, blockSize)
	entriesBuf = append(entriesBuf, make([]byte, k*uint64(blockSize)-uint64(len(entriesBuf)))...)

	length := d.device.Len()
	if length <= 3+2*k {
		return fmt.Errorf("gpt: device too small for %d-block entry arrays: %w", k, blockdev.ErrOutOfBounds)
	}

	mrange := blockdev.Range{First: 2 + k, Last: length - 2 - k}
	effectiveUsable := mrange
	if usable != nil {
		effectiveUsable = *usable
	}
	if !mrange.Contains(effectiveUsable) {
		return fmt.Errorf("gpt: usable range not contained in entry-array-bounded range: %w", blockdev.ErrOutOfBounds)
	}
	if err := validateEntries(effectiveUsable, entries); err != nil {
		return err
	}

	primary := Header{
		ThisLBA:      1,
		OtherLBA:     length - 1,
		Usable:       effectiveUsable,
		DiskGUID:     d.guid,
		EntriesLBA:   2,
		EntriesCount: d.entriesCount,
		EntriesCRC32: entriesCRC,
	}
	primary.HeaderCRC32 = headerChecksum(primary)

	secondary := primary
	secondary.ThisLBA = length - 1
	secondary.OtherLBA = 1
	secondary.EntriesLBA = length - 1 - k
	secondary.HeaderCRC32 = headerChecksum(secondary)

	if err := d.writeBlock(1, encodeHeader(primary)); err != nil {
		return err
	}
	if err := d.writeEntries(2, entriesBuf); err != nil {
		return err
	}
	if err := d.writeEntries(length-1-k, entriesBuf); err != nil {
		return err
	}
	if err := d.writeBlock(length-1, encodeHeader(secondary)); err != nil {
		return err
	}

	d.usable = effectiveUsable
	d.entries = entries
	return nil
}

func (d *Disk) writeBlock(index uint64, content []byte) error {
	block := make([]byte, d.device.BlockSize())
	copy(block, content)
	if err := d.device.Set(index, block); err != nil {
		return fmt.Errorf("gpt: writing block %d: %w", index, err)
	}
	return nil
}

func (d *Disk) writeEntries(start uint64, buf []byte) error {
	blockSize := d.device.BlockSize()
	for b := 0; b*blockSize < len(buf); b++ {
		if err := d.device.Set(start+uint64(b), buf[b*blockSize:(b+1)*blockSize]); err != nil {
			return fmt.Errorf("gpt: writing entries block %d: %w", start+uint64(b), err)
		}
	}
	return nil
}

// Partition is a device view translating I/O into a region of the
// backing device described by one GPT entry.
type Partition struct {
	device blockdev.Device
	entry  Entry
}

var _ blockdev.Device = (*Partition)(nil)

func (p *Partition) BlockSize() int { return p.device.BlockSize() }

func (p *Partition) Len() uint64 { return p.entry.Data.Len() }

func (p *Partition) Kind() uuid.UUID { return p.entry.Type }

func (p *Partition) Guid() uuid.UUID { return p.entry.PartitionGUID }

func (p *Partition) Name() string { return p.entry.Name() }

func (p *Partition) Get(index uint64) ([]byte, error) {
	blockdev.CheckIndex(index, p.Len())
	block, err := p.device.Get(index + p.entry.Data.First)
	if err != nil {
		return nil, fmt.Errorf("gpt: partition %s: %w", p.entry.PartitionGUID, err)
	}
	return block, nil
}

func (p *Partition) Set(index uint64, block []byte) error {
	blockdev.CheckIndex(index, p.Len())
	if err := p.device.Set(index+p.entry.Data.First, block); err != nil {
		return fmt.Errorf("gpt: partition %s: %w", p.entry.PartitionGUID, err)
	}
	return nil
}
