// Package filedev backs a Device with a POSIX file: a regular file sized
// to whole blocks, or a block-special device whose physical sector size
// is probed and required to match the caller's block size.
package filedev

import (
	"fmt"
	"os"

	"github.com/blocklayer/blocklayer/blockdev"
)

// File is a block device backed by an *os.File opened read-write. Every
// Set flushes before returning, so writes are durable by the time Set
// returns (the journal layer depends on this ordering guarantee).
type File struct {
	f         *os.File
	blockSize int
	length    uint64
}

var _ blockdev.Device = (*File)(nil)

// Open wraps f as a block device of the given block size. If f refers to
// a block-special device, its physical sector size is queried via ioctl
// and must equal blockSize; otherwise f is treated as a regular file and
// its length is derived from the file size. f must already be open for
// reading and writing.
func Open(f *os.File, blockSize int) (*File, error) {
	length, err := probeLength(f, blockSize)
	if err != nil {
		return nil, fmt.Errorf("filedev: %w", err)
	}
	return &File{f: f, blockSize: blockSize, length: length}, nil
}

func (d *File) BlockSize() int { return d.blockSize }

func (d *File) Len() uint64 { return d.length }

func (d *File) Get(index uint64) ([]byte, error) {
	blockdev.CheckIndex(index, d.length)
	block := make([]byte, d.blockSize)
	if _, err := d.f.ReadAt(block, int64(index)*int64(d.blockSize)); err != nil {
		return nil, fmt.Errorf("filedev: read block %d: %w", index, err)
	}
	return block, nil
}

func (d *File) Set(index uint64, block []byte) error {
	blockdev.CheckIndex(index, d.length)
	blockdev.CheckBlockSize(block, d.blockSize)
	if _, err := d.f.WriteAt(block, int64(index)*int64(d.blockSize)); err != nil {
		return fmt.Errorf("filedev: write block %d: %w", index, err)
	}
	return d.f.Sync()
}
