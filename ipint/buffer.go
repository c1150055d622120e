package ipint

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wippyai/wasm-ipint/errors"
)

// EntrySize is the width of one metadata entry. Every allocation the
// generator makes is a multiple of it.
const EntrySize = 8

// maxBufferSize keeps every offset representable as both a u32 cursor and
// an int index.
const maxBufferSize = min(math.MaxUint32, math.MaxInt)

// Offset is a byte position in a Buffer. It stays valid for the lifetime of
// the buffer; growth never moves existing bytes.
type Offset uint32

// U32 returns the raw offset for encoding as a metadata cursor.
func (o Offset) U32() uint32 {
	return uint32(o)
}

// Buffer is the append-only metadata stream of one function.
type Buffer struct {
	data  []byte
	limit int
}

// NewBuffer returns an empty buffer. A positive limit caps its size in bytes.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

// Len returns the current size of the buffer, which is also the metadata
// cursor of the next allocation.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the buffer contents. The slice aliases the buffer and must
// not be modified.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Allocate appends n zeroed bytes and returns the offset of the first one.
func (b *Buffer) Allocate(n int) (Offset, error) {
	if n < 0 {
		return 0, errors.New(errors.PhaseCompile, errors.KindAllocation).
			Detail("negative allocation size %d", n).
			Build()
	}
	total := uint64(len(b.data)) + uint64(n)
	if total > maxBufferSize || (b.limit > 0 && total > uint64(b.limit)) {
		return 0, errors.AllocationFailed(errors.PhaseCompile, uint32(n), EntrySize)
	}
	size := int(total)
	off := Offset(len(b.data))
	if size > cap(b.data) {
		grown := make([]byte, len(b.data), max(size, 2*cap(b.data), 64))
		copy(grown, b.data)
		b.data = grown
	}
	b.data = b.data[:size]
	clear(b.data[off:])
	return off, nil
}

// AllocateEntries allocates n metadata entries.
func (b *Buffer) AllocateEntries(n int) (Offset, error) {
	return b.Allocate(n * EntrySize)
}

// AddRaw appends one entry holding v.
func (b *Buffer) AddRaw(v uint64) (Offset, error) {
	off, err := b.Allocate(EntrySize)
	if err != nil {
		return 0, err
	}
	b.Put64(off, 0, v)
	return off, nil
}

// Put8 writes v at off+at.
func (b *Buffer) Put8(off Offset, at int, v uint8) {
	b.span(off, at, 1)[0] = v
}

// Put16 writes v little-endian at off+at.
func (b *Buffer) Put16(off Offset, at int, v uint16) {
	binary.LittleEndian.PutUint16(b.span(off, at, 2), v)
}

// Put32 writes v little-endian at off+at.
func (b *Buffer) Put32(off Offset, at int, v uint32) {
	binary.LittleEndian.PutUint32(b.span(off, at, 4), v)
}

// Put64 writes v little-endian at off+at.
func (b *Buffer) Put64(off Offset, at int, v uint64) {
	binary.LittleEndian.PutUint64(b.span(off, at, 8), v)
}

// PutTarget writes a (PC, MC) pair at off.
func (b *Buffer) PutTarget(off Offset, t Target) {
	b.Put32(off, 0, t.PC)
	b.Put32(off, 4, t.MC)
}

// Uint8 reads the byte at pos.
func (b *Buffer) Uint8(pos int) uint8 {
	return b.span(0, pos, 1)[0]
}

// Uint16 reads a little-endian uint16 at pos.
func (b *Buffer) Uint16(pos int) uint16 {
	return binary.LittleEndian.Uint16(b.span(0, pos, 2))
}

// Uint32 reads a little-endian uint32 at pos.
func (b *Buffer) Uint32(pos int) uint32 {
	return binary.LittleEndian.Uint32(b.span(0, pos, 4))
}

// Uint64 reads a little-endian uint64 at pos.
func (b *Buffer) Uint64(pos int) uint64 {
	return binary.LittleEndian.Uint64(b.span(0, pos, 8))
}

// span returns the width bytes at off+at. Touching bytes that were never
// allocated is a bug in the caller.
func (b *Buffer) span(off Offset, at, width int) []byte {
	p := int(off) + at
	if at < 0 || p+width > len(b.data) {
		panic(fmt.Sprintf("ipint: access of %d bytes at %d beyond metadata length %d", width, p, len(b.data)))
	}
	return b.data[p : p+width]
}

func roundUp8(n int) int {
	return (n + EntrySize - 1) &^ (EntrySize - 1)
}
