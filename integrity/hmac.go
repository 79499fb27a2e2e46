// Package integrity provides Hmac, a device adapter that appends a
// keyed authentication tag to every block and rejects silently modified
// or reordered blocks on read. It reduces the usable block size by the
// tag size.
package integrity

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"

	"github.com/blocklayer/blocklayer/blockdev"
)

// ErrBlockModified is returned when a block's stored tag does not match
// its recomputed tag: the block was altered, truncated, or swapped with
// another index since it was last written.
var ErrBlockModified = errors.New("integrity: block failed authentication")

// Hmac wraps an inner device of block size S, exposing blocks of size
// S-H where H is the chosen hash's output size. The MAC covers both the
// block index and its contents, so a block relocated from one index to
// another (a "block swap" below the integrity layer) is detected the
// same as a bit-flipped one.
type Hmac struct {
	inner     blockdev.Device
	key       []byte
	newHash   func() hash.Hash
	tagSize   int
	blockSize int
}

// New wraps inner with HMAC authentication under key using newHash (e.g.
// sha256.New, sha384.New, sha512.New) as the hash constructor. key must be
// exactly as long as the hash's output (H bytes); this, like the
// block-size checks below, is a construction-time programmer contract,
// not a runtime failure mode, so a mismatch panics rather than erroring.
func New(inner blockdev.Device, key []byte, newHash func() hash.Hash) *Hmac {
	tagSize := newHash().Size()
	if len(key) != tagSize {
		panic(fmt.Sprintf("integrity: key is %d bytes, want %d", len(key), tagSize))
	}
	if inner.BlockSize() <= tagSize {
		panic(fmt.Sprintf("integrity: inner block size %d too small for %d-byte tag", inner.BlockSize(), tagSize))
	}
	if inner.BlockSize()%tagSize != 0 {
		panic(fmt.Sprintf("integrity: inner block size %d is not a multiple of tag size %d", inner.BlockSize(), tagSize))
	}
	return &Hmac{
		inner:     inner,
		key:       key,
		newHash:   newHash,
		tagSize:   tagSize,
		blockSize: inner.BlockSize() - tagSize,
	}
}

// Hs512 wraps inner with HMAC-SHA512 authentication, the convenience
// instance used where callers don't need to choose a hash.
func Hs512(inner blockdev.Device, key []byte) *Hmac {
	return New(inner, key, sha512.New)
}

var _ blockdev.Device = (*Hmac)(nil)

func (h *Hmac) BlockSize() int { return h.blockSize }

func (h *Hmac) Len() uint64 { return h.inner.Len() }

func (h *Hmac) tag(index uint64, body []byte) []byte {
	mac := hmac.New(h.newHash, h.key)
	var indexBytes [8]byte
	binary.LittleEndian.PutUint64(indexBytes[:], index)
	mac.Write(indexBytes[:])
	mac.Write(body)
	return mac.Sum(nil)
}

func (h *Hmac) Get(index uint64) ([]byte, error) {
	raw, err := h.inner.Get(index)
	if err != nil {
		return nil, fmt.Errorf("integrity: %w", err)
	}

	body := raw[:h.blockSize]
	storedTag := raw[h.blockSize:]
	if !hmac.Equal(h.tag(index, body), storedTag) {
		return nil, fmt.Errorf("integrity: block %d: %w", index, ErrBlockModified)
	}

	out := make([]byte, h.blockSize)
	copy(out, body)
	return out, nil
}

func (h *Hmac) Set(index uint64, block []byte) error {
	blockdev.CheckBlockSize(block, h.blockSize)

	raw := make([]byte, 0, h.inner.BlockSize())
	raw = append(raw, block...)
	raw = append(raw, h.tag(index, block)...)

	if err := h.inner.Set(index, raw); err != nil {
		return fmt.Errorf("integrity: %w", err)
	}
	return nil
}
