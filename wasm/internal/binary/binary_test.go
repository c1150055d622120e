package binary

import (
	"errors"
	"io"
	"testing"
)

func TestReader_LEB128(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		u64  uint64
		s64  int64
	}{
		{"zero", []byte{0x00}, 0, 0},
		{"one byte", []byte{0x3f}, 63, 63},
		{"sign bit", []byte{0x7f}, 127, -1},
		{"two bytes", []byte{0xe5, 0x8e, 0x26}, 624485, 624485},
		{"negative", []byte{0xc0, 0xbb, 0x78}, 1973696, -123456},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewReader(tt.data).ReadU64()
			if err != nil {
				t.Fatalf("ReadU64: %v", err)
			}
			if u != tt.u64 {
				t.Errorf("ReadU64 = %d, want %d", u, tt.u64)
			}
			s, err := NewReader(tt.data).ReadS64()
			if err != nil {
				t.Fatalf("ReadS64: %v", err)
			}
			if s != tt.s64 {
				t.Errorf("ReadS64 = %d, want %d", s, tt.s64)
			}
		})
	}
}

func TestReader_U32Overflow(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x7f})
	if _, err := r.ReadU32(); !errors.Is(err, ErrOverflow) {
		t.Errorf("ReadU32 error = %v, want ErrOverflow", err)
	}
}

func TestReader_Bounds(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	if _, err := r.ReadBytes(4); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadBytes error = %v, want ErrUnexpectedEOF", err)
	}
	sub, err := r.Sub(2)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 2 || r.Position() != 2 {
		t.Errorf("sub.Len=%d pos=%d", sub.Len(), r.Position())
	}
	if _, err := NewReader(nil).ReadByte(); err != io.EOF {
		t.Errorf("ReadByte on empty = %v, want EOF", err)
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU32LE(0x6D736100)
	w.WriteU32(300)
	w.WriteName("main")
	w.Section(1, []byte{0xaa})

	r := NewReader(w.Bytes())
	if v, _ := r.ReadU32LE(); v != 0x6D736100 {
		t.Errorf("U32LE = %#x", v)
	}
	if v, _ := r.ReadU32(); v != 300 {
		t.Errorf("U32 = %d", v)
	}
	if v, _ := r.ReadName(); v != "main" {
		t.Errorf("Name = %q", v)
	}
	id, _ := r.ReadByte()
	size, _ := r.ReadU32()
	body, _ := r.ReadBytes(int(size))
	if id != 1 || len(body) != 1 || body[0] != 0xaa {
		t.Errorf("section = %d %v", id, body)
	}
}
