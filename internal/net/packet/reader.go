package packet

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/traditionalchinese"
)

// Reader decodes the byte-aligned header of a frame payload: the opcode,
// then little-endian fields and NUL-terminated strings. Any bitstream body
// follows the header and is read through Bits.
//
// A read past the end returns the zero value and latches ErrShortRead;
// later reads keep returning zero. Check Err once after the last field.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader positions the reader after the opcode byte.
func NewReader(data []byte) *Reader {
	r := &Reader{data: data, off: 1}
	if len(data) == 0 {
		r.off = 0
		r.err = fmt.Errorf("%w: empty payload", ErrShortRead)
	}
	return r
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

// Err returns the first short read, if any.
func (r *Reader) Err() error { return r.err }

// take returns the next n bytes, or nil after latching ErrShortRead.
func (r *Reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: %s at byte %d", ErrShortRead, what, r.off)
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadC() byte {
	if b := r.take(1, "byte"); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) ReadH() uint16 {
	if b := r.take(2, "uint16"); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) ReadDU() uint32 {
	if b := r.take(4, "uint32"); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) ReadF() float32 {
	return math.Float32frombits(r.ReadDU())
}

// ReadS reads a NUL-terminated MS950 string. A missing terminator is a
// short read.
func (r *Reader) ReadS() string {
	if r.err != nil {
		return ""
	}
	for i := r.off; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := ms950ToUTF8(r.data[r.off:i])
			r.off = i + 1
			return s
		}
	}
	r.err = fmt.Errorf("%w: unterminated string at byte %d", ErrShortRead, r.off)
	r.off = len(r.data)
	return ""
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Bits returns a bit reader over the unread bytes.
func (r *Reader) Bits() *BitReader {
	return NewBitReader(r.data[r.off:])
}

// ms950ToUTF8 將 MS950 (Big5) 位元組解碼為 UTF-8，純 ASCII 直接回傳。
func ms950ToUTF8(raw []byte) string {
	ascii := true
	for _, b := range raw {
		if b >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(raw)
	}
	decoded, err := traditionalchinese.Big5.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
