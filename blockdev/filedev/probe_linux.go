//go:build linux

package filedev

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// probeLength determines how many blockSize blocks f holds. If f is a
// block-special device, its physical sector size is queried via ioctl and
// must equal blockSize (a mismatch is the caller's error, not ours to
// paper over); the capacity then comes from BLKGETSIZE64. Otherwise f is
// a regular file and the length is its size divided by blockSize.
func probeLength(f *os.File, blockSize int) (uint64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}

	if fi.Mode()&os.ModeDevice == 0 {
		return regularFileLength(f, blockSize)
	}

	fd := int(f.Fd())

	physBlockSize, err := unix.IoctlGetInt(fd, unix.BLKPBSZGET)
	if err != nil {
		if errors.Is(err, unix.ENOTTY) {
			// Not actually block-special as far as the kernel is
			// concerned (e.g. a character device); fall back.
			return regularFileLength(f, blockSize)
		}
		return 0, fmt.Errorf("BLKPBSZGET: %w", err)
	}
	if physBlockSize != blockSize {
		return 0, fmt.Errorf("physical block size %d does not match device block size %d", physBlockSize, blockSize)
	}

	sizeInBytes, err := unix.IoctlGetUint64(fd, unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("BLKGETSIZE64: %w", err)
	}

	return sizeInBytes / uint64(blockSize), nil
}

func regularFileLength(f *os.File, blockSize int) (uint64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()) / uint64(blockSize), nil
}
