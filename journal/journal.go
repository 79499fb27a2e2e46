// Package journal provides Journal, a device adapter that turns groups of
// physical blocks into crash-atomic logical blocks using a two-slot
// (meta + shadow) write-ahead scheme. It is the layer that makes the
// rest of the stack tolerant of torn writes below it.
package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"

	"github.com/sirupsen/logrus"

	"github.com/blocklayer/blocklayer/blockdev"
)

var isoTable = crc64.MakeTable(crc64.ISO)

// Journal wraps a physical device of block size LOWER, exposing logical
// blocks of size UPPER where UPPER = R * LOWER for an integer ratio R.
// The first 2*R physical blocks are reserved: region [0,R) holds meta,
// region [R,2R) holds shadow. Logical block i lives at physical region
// [(i+2)*R, (i+2)*R+R).
type Journal struct {
	inner blockdev.Device
	ratio uint64
	upper int
}

// Open wraps inner and runs the recovery protocol: if the meta region
// describes a write whose shadow copy is intact, it replays that write
// to its destination before Open returns, so a caller never observes a
// journal left mid-write by a prior crash. If meta or shadow cannot even
// be read back (inner rejects the region outright, as an authenticated
// or encrypted lower layer will on a blank, never-written device), Open
// treats that the same as "no journal state recorded yet" and succeeds
// without replaying anything.
func Open(inner blockdev.Device, upper int) (*Journal, error) {
	lower := inner.BlockSize()
	if upper <= 0 || upper%lower != 0 {
		panic(fmt.Sprintf("journal: logical block size %d is not a multiple of physical block size %d", upper, lower))
	}
	ratio := uint64(upper / lower)
	if inner.Len() < 2*ratio {
		panic(fmt.Sprintf("journal: inner device has %d blocks, too small for a %d-block meta+shadow region", inner.Len(), 2*ratio))
	}

	j := &Journal{inner: inner, ratio: ratio, upper: upper}
	if err := j.recover(); err != nil {
		return nil, fmt.Errorf("journal: recovery: %w", err)
	}
	return j, nil
}

var _ blockdev.Device = (*Journal)(nil)

func (j *Journal) BlockSize() int { return j.upper }

func (j *Journal) Len() uint64 { return j.inner.Len()/j.ratio - 2 }

func (j *Journal) destinationStart(index uint64) uint64 { return (index + 2) * j.ratio }

func (j *Journal) readRegion(start uint64) ([]byte, error) {
	out := make([]byte, 0, j.upper)
	for k := uint64(0); k < j.ratio; k++ {
		b, err := j.inner.Get(start + k)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func (j *Journal) writeRegion(start uint64, data []byte) error {
	lower := j.inner.BlockSize()
	for k := uint64(0); k < j.ratio; k++ {
		chunk := data[int(k)*lower : int(k+1)*lower]
		if err := j.inner.Set(start+k, chunk); err != nil {
			return err
		}
	}
	return nil
}

func checksum(index uint64, block []byte) uint64 {
	buf := make([]byte, 8, 8+len(block))
	binary.LittleEndian.PutUint64(buf, index)
	buf = append(buf, block...)
	return crc64.Checksum(buf, isoTable)
}

// recover runs the replay protocol. A read failure on meta or shadow is
// not propagated as fatal: layers above the journal (integrity, crypt)
// can reject a never-written region outright, e.g. an unauthenticated
// tag on a blank device, and that is indistinguishable from "no journal
// state was ever recorded here", so it is treated the same way: skip
// replay and let Open succeed. The read failure itself is not reported
// anywhere: Get and Set never read the meta or shadow regions, so a
// lower-layer failure confined to those regions goes unnoticed, and any
// replay they recorded is skipped.
func (j *Journal) recover() error {
	meta, err := j.readRegion(0)
	if err != nil {
		logrus.WithError(err).Debug("journal: meta unreadable, treating as unformatted, skipping replay")
		return nil
	}
	shadow, err := j.readRegion(j.ratio)
	if err != nil {
		logrus.WithError(err).Debug("journal: shadow unreadable, treating as unformatted, skipping replay")
		return nil
	}

	index := binary.LittleEndian.Uint64(meta[0:8])
	storedCRC := binary.LittleEndian.Uint64(meta[8:16])

	if checksum(index, shadow) != storedCRC {
		logrus.Debug("journal: meta/shadow do not agree, no replay needed")
		return nil
	}

	logrus.WithField("index", index).Info("journal: replaying shadow to destination")
	if err := j.writeRegion(j.destinationStart(index), shadow); err != nil {
		return fmt.Errorf("replaying to destination %d: %w", index, err)
	}
	return nil
}

// Get reads logical block index, concatenating its R physical blocks.
func (j *Journal) Get(index uint64) ([]byte, error) {
	blockdev.CheckIndex(index, j.Len())

	block, err := j.readRegion(j.destinationStart(index))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return block, nil
}

// Set writes logical block index using the meta -> shadow -> destination
// protocol. Each of the three region writes may itself tear; on failure
// Set returns immediately without attempting the remaining writes, and
// the next Open call's recovery protocol determines the surviving state.
func (j *Journal) Set(index uint64, block []byte) error {
	blockdev.CheckIndex(index, j.Len())
	blockdev.CheckBlockSize(block, j.upper)

	meta := make([]byte, j.upper)
	binary.LittleEndian.PutUint64(meta[0:8], index)
	binary.LittleEndian.PutUint64(meta[8:16], checksum(index, block))

	if err := j.writeRegion(0, meta); err != nil {
		return fmt.Errorf("journal: writing meta: %w", err)
	}
	if err := j.writeRegion(j.ratio, block); err != nil {
		return fmt.Errorf("journal: writing shadow: %w", err)
	}
	if err := j.writeRegion(j.destinationStart(index), block); err != nil {
		return fmt.Errorf("journal: writing destination: %w", err)
	}
	return nil
}
