// Package blockdev defines the uniform block-device contract shared by
// every layer in the stack: backing stores, fault injectors, the
// encryption and integrity wrappers, the journal, and the GPT partitions.
//
// A Device always has a fixed block size, fixed for the lifetime of the
// value. Reads and writes address whole blocks by a zero-based index in
// [0, Len()). Indexing outside that range is a programmer error, not a
// device failure, and implementations should panic rather than return it
// as an error.
package blockdev

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across layers. Each wrapping layer returns these
// (optionally wrapped with fmt.Errorf's %w) rather than inventing its own
// vocabulary, so callers can use errors.Is regardless of how many layers
// deep the error originated.
var (
	// ErrCorrupted means a CRC or MAC failed to verify.
	ErrCorrupted = errors.New("blockdev: corrupted")
	// ErrMismatch means two redundant copies of something disagree on a
	// field that both copies are supposed to agree on.
	ErrMismatch = errors.New("blockdev: mismatch")
	// ErrUnsupported means a structure parsed cleanly but declares a
	// revision, size, or reserved field this implementation does not
	// understand.
	ErrUnsupported = errors.New("blockdev: unsupported")
	// ErrOutOfBounds means a structural constraint was violated: a range
	// that doesn't fit, a name too long, a device too small.
	ErrOutOfBounds = errors.New("blockdev: out of bounds")
	// ErrConflict means two entries claim the same identity (partition
	// GUID) or two redundant copies disagree on an invariant field.
	ErrConflict = errors.New("blockdev: conflict")
)

// Device is the uniform contract implemented by every layer of the stack.
type Device interface {
	// BlockSize returns the fixed size, in bytes, of every block this
	// device exposes.
	BlockSize() int

	// Len returns the number of blocks. Pure; never fails.
	Len() uint64

	// Get reads the block at index. index must be < Len(); violating
	// this is a programmer error and implementations panic instead of
	// returning an error for it.
	Get(index uint64) ([]byte, error)

	// Set writes block at index, which must have length BlockSize().
	// index must be < Len(). On success the block is durably replaced;
	// on failure its contents are unspecified between unchanged and
	// partially changed.
	Set(index uint64, block []byte) error
}

// CheckIndex panics if index is out of [0, length) — the device contract
// treats such calls as caller bugs, not I/O errors.
func CheckIndex(index, length uint64) {
	if index >= length {
		panic(fmt.Sprintf("blockdev: index %d out of range [0, %d)", index, length))
	}
}

// CheckBlockSize panics if block does not have exactly size bytes — a
// caller passing the wrong size buffer to Set is a programmer error.
func CheckBlockSize(block []byte, size int) {
	if len(block) != size {
		panic(fmt.Sprintf("blockdev: block has %d bytes, want %d", len(block), size))
	}
}

// Range is an inclusive pair of block indices, First <= Last.
type Range struct {
	First uint64
	Last  uint64
}

// Includes reports whether block lies within r, inclusive.
func (r Range) Includes(block uint64) bool {
	return block >= r.First && block <= r.Last
}

// Contains reports whether other is entirely within r.
func (r Range) Contains(other Range) bool {
	return r.Includes(other.First) && r.Includes(other.Last)
}

// Overlaps reports whether either endpoint of other falls inside r. This
// mirrors the reference semantics exactly and is not the fully general
// interval intersection test: an other that strictly encloses r is not
// reported. It assumes First <= Last on both sides.
func (r Range) Overlaps(other Range) bool {
	return r.Includes(other.First) || r.Includes(other.Last)
}

// Len returns the number of blocks spanned by r.
func (r Range) Len() uint64 {
	return r.Last - r.First + 1
}
