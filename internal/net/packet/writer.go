package packet

import (
	"encoding/binary"
	"math"
)

// Writer builds a frame payload: an opcode, byte-aligned header fields, and
// usually a trailing bitstream. Multi-byte fields are little-endian.
type Writer struct {
	buf []byte
}

func NewWriterWithOpcode(opcode byte) *Writer {
	return &Writer{buf: append(make([]byte, 0, 64), opcode)}
}

func (w *Writer) WriteC(v byte) { w.buf = append(w.buf, v) }

func (w *Writer) WriteH(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

func (w *Writer) WriteDU(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *Writer) WriteF(v float32) { w.WriteDU(math.Float32bits(v)) }

// WriteS writes s as MS950 (Big5) followed by a NUL. Unsupported runes
// become 0x1A; see WireString.
func (w *Writer) WriteS(s string) {
	w.buf = append(w.buf, utf8ToMS950(s)...)
	w.buf = append(w.buf, 0)
}

// WriteBits appends a finished bitstream; it must be the last field.
func (w *Writer) WriteBits(bw *BitWriter) {
	w.buf = append(w.buf, bw.Bytes()...)
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }
