// Package memdev provides an in-memory block device backing, used as the
// bottom of a test stack or wherever durability across process restarts
// isn't required.
package memdev

import "github.com/blocklayer/blocklayer/blockdev"

// Memory is a fixed-capacity, zero-initialized block store. It never
// fails: Get and Set always succeed for an in-range index.
type Memory struct {
	blockSize int
	blocks    [][]byte
}

var _ blockdev.Device = (*Memory)(nil)

// New allocates a Memory device of count blocks, each size bytes, all
// zeroed.
func New(size, count int) *Memory {
	blocks := make([][]byte, count)
	for i := range blocks {
		blocks[i] = make([]byte, size)
	}
	return &Memory{blockSize: size, blocks: blocks}
}

func (m *Memory) BlockSize() int { return m.blockSize }

func (m *Memory) Len() uint64 { return uint64(len(m.blocks)) }

// Get returns a copy of the block at index, so callers can't mutate the
// backing store by mutating the returned slice.
func (m *Memory) Get(index uint64) ([]byte, error) {
	blockdev.CheckIndex(index, m.Len())
	out := make([]byte, m.blockSize)
	copy(out, m.blocks[index])
	return out, nil
}

func (m *Memory) Set(index uint64, block []byte) error {
	blockdev.CheckIndex(index, m.Len())
	blockdev.CheckBlockSize(block, m.blockSize)
	copy(m.blocks[index], block)
	return nil
}
