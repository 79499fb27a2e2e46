//go:build !linux

package filedev

import "os"

// probeLength on non-Linux platforms only supports regular files; block-
// special probing is a Linux ioctl concern per spec.
func probeLength(f *os.File, blockSize int) (uint64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()) / uint64(blockSize), nil
}
