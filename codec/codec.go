// Package codec provides the little-endian, fixed-width (de)serialization
// building blocks used by the gpt package: no length
// prefixes, no tags, no alignment padding — a struct's encoding is just
// the concatenation of its fields' encodings in declaration order, the
// same discipline the on-disk GPT and journal layouts require.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates a little-endian encoding into an in-memory buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with its buffer pre-sized to n bytes.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Bytes appends the raw bytes of a fixed-size array field (no length
// prefix: the field's size is implied by the struct layout, not the
// wire format).
func (w *Writer) Bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Pad appends n zero bytes, used to bring a buffer up to a block-size
// multiple.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Done returns the accumulated encoding.
func (w *Writer) Done() []byte {
	return w.buf
}

// Reader sequentially decodes a little-endian encoding out of a fixed
// buffer. Any well-formed buffer of the exact serialized length decodes;
// reading past the end of the buffer is an encoding bug in the caller and
// panics rather than returning an error, matching the device contract's
// treatment of programmer errors.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) take(n int) []byte {
	if r.pos+n > len(r.buf) {
		panic(fmt.Sprintf("codec: read past end of buffer (pos=%d, n=%d, len=%d)", r.pos, n, len(r.buf)))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Uint16() uint16 {
	return binary.LittleEndian.Uint16(r.take(2))
}

func (r *Reader) Uint32() uint32 {
	return binary.LittleEndian.Uint32(r.take(4))
}

func (r *Reader) Uint64() uint64 {
	return binary.LittleEndian.Uint64(r.take(8))
}

// Bytes returns the next n raw bytes, copied so the caller can retain
// them independent of the underlying buffer.
func (r *Reader) Bytes(n int) []byte {
	b := make([]byte, n)
	copy(b, r.take(n))
	return b
}

// Skip advances the cursor by n bytes without decoding them (used for
// reserved fields).
func (r *Reader) Skip(n int) {
	r.take(n)
}

// EncodeUTF16Name encodes s as UTF-16 code units zero-padded (or
// truncated-checked) to exactly width units, returning blockdev.ErrOutOfBounds
// semantics via a plain error if s doesn't fit. Mirrors the GPT partition
// name field: a fixed-width, zero-padded UTF-16 buffer, not a length-
// prefixed string.
func EncodeUTF16Name(s string, width int) ([]uint16, error) {
	units := utf16Encode(s)
	if len(units) > width {
		return nil, fmt.Errorf("codec: name %q needs %d UTF-16 units, buffer holds %d", s, len(units), width)
	}
	out := make([]uint16, width)
	copy(out, units)
	return out, nil
}

// DecodeUTF16Name decodes a zero-padded fixed-width UTF-16 buffer back
// into a Go string, stopping at the first zero code unit (or the end of
// the buffer if there is none).
func DecodeUTF16Name(units []uint16) string {
	n := len(units)
	for i, u := range units {
		if u == 0 {
			n = i
			break
		}
	}
	return utf16Decode(units[:n])
}
