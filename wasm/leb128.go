package wasm

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrOverflow is returned when a LEB128 value exceeds its target width.
var ErrOverflow = errors.New("leb128: overflow")

// DecodeU32 decodes an unsigned LEB128 uint32 from b and returns the value
// and the number of bytes consumed.
func DecodeU32(b []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i, c := range b {
		if i == 5 {
			return 0, 0, ErrOverflow
		}
		if i == 4 && c&0x70 != 0 {
			return 0, 0, ErrOverflow
		}
		result |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// DecodeU64 decodes an unsigned LEB128 uint64.
func DecodeU64(b []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	for i, c := range b {
		if i == 10 {
			return 0, 0, ErrOverflow
		}
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// DecodeS32 decodes a signed LEB128 int32.
func DecodeS32(b []byte) (int32, int, error) {
	v, n, err := DecodeS64(b)
	if err != nil {
		return 0, 0, err
	}
	if n > 5 || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, 0, ErrOverflow
	}
	return int32(v), n, nil
}

// DecodeS33 decodes the signed 33-bit block type encoding.
func DecodeS33(b []byte) (int64, int, error) {
	v, n, err := DecodeS64(b)
	if err != nil {
		return 0, 0, err
	}
	if n > 5 {
		return 0, 0, ErrOverflow
	}
	return v, n, nil
}

// DecodeS64 decodes a signed LEB128 int64.
func DecodeS64(b []byte) (int64, int, error) {
	var result int64
	var shift uint
	for i, c := range b {
		if i == 10 {
			return 0, 0, ErrOverflow
		}
		result |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 64 && c&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, i + 1, nil
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// AppendU32 appends the unsigned LEB128 encoding of v.
func AppendU32(dst []byte, v uint32) []byte {
	return AppendU64(dst, uint64(v))
}

// AppendU64 appends the unsigned LEB128 encoding of v.
func AppendU64(dst []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, c)
		}
		dst = append(dst, c|0x80)
	}
}

// AppendS32 appends the signed LEB128 encoding of v.
func AppendS32(dst []byte, v int32) []byte {
	return AppendS64(dst, int64(v))
}

// AppendS64 appends the signed LEB128 encoding of v.
func AppendS64(dst []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(dst, c)
		}
		dst = append(dst, c|0x80)
	}
}

// AppendF32 appends the little-endian IEEE 754 encoding of v.
func AppendF32(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

// AppendF64 appends the little-endian IEEE 754 encoding of v.
func AppendF64(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}
