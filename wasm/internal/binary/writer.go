package binary

import "encoding/binary"

// Writer builds a module binary. The zero value is ready to use.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Byte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) WriteU32(v uint32) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteU64(v uint64) {
	for ; v >= 0x80; v >>= 7 {
		w.buf = append(w.buf, byte(v)|0x80)
	}
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteU32LE(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// Section appends a section with its id and size prefix. Empty payloads
// are still written.
func (w *Writer) Section(id byte, payload []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(payload)))
	w.WriteBytes(payload)
}
