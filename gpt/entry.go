package gpt

import (
	uuid "github.com/satori/go.uuid"

	"github.com/blocklayer/blocklayer/blockdev"
	"github.com/blocklayer/blocklayer/codec"
)

const nameUnits = 36 // 72 bytes of UTF-16 code units

// Entry is one 128-byte partition descriptor. A Type of the zero UUID
// marks an empty slot and is never returned from Disk.Partitions.
type Entry struct {
	Type            uuid.UUID
	PartitionGUID   uuid.UUID
	Data            blockdev.Range
	Attributes      uint64
	nameUnits       []uint16
}

// Name decodes the entry's fixed-width UTF-16 name field.
func (e Entry) Name() string {
	return codec.DecodeUTF16Name(e.nameUnits)
}

func newEntry(typeGUID, partitionGUID uuid.UUID, data blockdev.Range, attributes uint64, name string) (Entry, error) {
	units, err := codec.EncodeUTF16Name(name, nameUnits)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Type:          typeGUID,
		PartitionGUID: partitionGUID,
		Data:          data,
		Attributes:    attributes,
		nameUnits:     units,
	}, nil
}

func (e Entry) empty() bool {
	return e.Type == uuid.Nil
}

func encodeEntry(e Entry) []byte {
	w := codec.NewWriter(entrySize)
	w.Bytes(e.Type.Bytes())
	w.Bytes(e.PartitionGUID.Bytes())
	w.Uint64(e.Data.First)
	w.Uint64(e.Data.Last)
	w.Uint64(e.Attributes)
	for _, u := range e.nameUnits {
		w.Uint16(u)
	}
	// pad name field out to the full 36 units if fewer were captured.
	for i := len(e.nameUnits); i < nameUnits; i++ {
		w.Uint16(0)
	}
	return w.Done()
}

func decodeEntry(raw []byte) Entry {
	r := codec.NewReader(raw[:entrySize])
	typeGUID, _ := uuid.FromBytes(r.Bytes(16))
	partGUID, _ := uuid.FromBytes(r.Bytes(16))
	first := r.Uint64()
	last := r.Uint64()
	attrs := r.Uint64()
	units := make([]uint16, nameUnits)
	for i := range units {
		units[i] = r.Uint16()
	}
	return Entry{
		Type:          typeGUID,
		PartitionGUID: partGUID,
		Data:          blockdev.Range{First: first, Last: last},
		Attributes:    attrs,
		nameUnits:     units,
	}
}
