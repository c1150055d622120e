package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value does not fit its target width.
var ErrOverflow = errors.New("leb128: overflow")

var errName = errors.New("invalid UTF-8 in name")

// Reader is a forward-only cursor over a module binary. Slices it returns
// alias the underlying data.
type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position is the offset of the next unread byte.
func (r *Reader) Position() int { return r.pos }

// Len is the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.pos }

// Remaining returns the unread tail without consuming it.
func (r *Reader) Remaining() []byte { return r.data[r.pos:] }

func (r *Reader) ReadByte() (byte, error) {
	if r.pos == len(r.data) {
		return 0, io.EOF
	}
	r.pos++
	return r.data[r.pos-1], nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, r.at(io.ErrUnexpectedEOF)
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// Sub consumes n bytes and returns a Reader positioned at their start.
func (r *Reader) Sub(n int) (*Reader, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}

// ReadU32 reads a varuint32. Encodings longer than five bytes or with
// payload bits above bit 31 are rejected.
func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.uleb(5)
	if err != nil {
		return 0, err
	}
	if v>>32 != 0 {
		return 0, r.at(ErrOverflow)
	}
	return uint32(v), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	return r.uleb(10)
}

func (r *Reader) ReadS64() (int64, error) {
	var v int64
	var shift uint
	for n := 0; n < 10; n++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, r.at(io.ErrUnexpectedEOF)
		}
		v |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 64 && c&0x40 != 0 {
				v |= -1 << shift
			}
			return v, nil
		}
	}
	return 0, r.at(ErrOverflow)
}

func (r *Reader) uleb(limit int) (uint64, error) {
	var v uint64
	var shift uint
	for n := 0; n < limit; n++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, r.at(io.ErrUnexpectedEOF)
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
	return 0, r.at(ErrOverflow)
}

// ReadName reads a length-prefixed UTF-8 string.
func (r *Reader) ReadName() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", r.at(errName)
	}
	return string(b), nil
}

// ReadU32LE reads a fixed-width little-endian uint32, as used by the header.
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) at(err error) error {
	return fmt.Errorf("offset %d: %w", r.pos, err)
}

// ParseError locates a decode failure within the module binary.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("wasm: offset %d: %v", e.Position, e.Err)
	}
	return fmt.Sprintf("wasm: %s: offset %d: %v", e.Section, e.Position, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WrapError attaches the section name and current offset to err.
func (r *Reader) WrapError(section string, err error) error {
	return &ParseError{Err: err, Section: section, Position: r.pos}
}
