package packet

import (
	"errors"
	"math"
	"math/bits"
	"strings"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/traditionalchinese"
)

var (
	// ErrShortRead means the stream ended (or hit its limit) mid-field.
	ErrShortRead = errors.New("bitstream: short read")
	// ErrOutOfRange means a ranged integer decoded outside its bounds.
	ErrOutOfRange = errors.New("bitstream: value out of range")
)

// MaxStringBytes is the longest encoded string a bitstream carries.
const MaxStringBytes = 255

// BitsFor returns how many bits encode any value in [0, span].
func BitsFor(span uint64) int { return bits.Len64(span) }

// BitWriter appends fields MSB-first. The final byte is zero padded.
type BitWriter struct {
	buf  []byte
	nbit int
}

func NewBitWriter() *BitWriter {
	return &BitWriter{buf: make([]byte, 0, 64)}
}

// WriteBits writes the low n bits of v, most significant first.
func (w *BitWriter) WriteBits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbit%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 != 0 {
			w.buf[w.nbit/8] |= 0x80 >> uint(w.nbit%8)
		}
		w.nbit++
	}
}

// PatchBits overwrites n bits starting at bit position pos.
func (w *BitWriter) PatchBits(pos int, v uint64, n int) {
	for i := 0; i < n; i++ {
		p := pos + i
		mask := byte(0x80 >> uint(p%8))
		if v>>uint(n-1-i)&1 != 0 {
			w.buf[p/8] |= mask
		} else {
			w.buf[p/8] &^= mask
		}
	}
}

func (w *BitWriter) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// WriteFloat32 writes the raw IEEE-754 bits.
func (w *BitWriter) WriteFloat32(f float32) {
	w.WriteBits(uint64(math.Float32bits(f)), 32)
}

// WriteRanged writes v-min in just enough bits for [min, max]. v is clamped.
func (w *BitWriter) WriteRanged(v, min, max int64) {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	w.WriteBits(uint64(v-min), BitsFor(uint64(max-min)))
}

// WriteString writes an 8-bit length then MS950 (Big5) bytes. Runes Big5
// cannot carry become 0x1A (SUB) and the bytes are cut at MaxStringBytes;
// strings passed through WireString first survive unchanged.
func (w *BitWriter) WriteString(s string) {
	raw := utf8ToMS950(s)
	if len(raw) > MaxStringBytes {
		raw = raw[:MaxStringBytes]
	}
	w.WriteBits(uint64(len(raw)), 8)
	for _, b := range raw {
		w.WriteBits(uint64(b), 8)
	}
}

func (w *BitWriter) WriteVec3(v mgl32.Vec3) {
	for _, f := range v {
		w.WriteFloat32(f)
	}
}

func (w *BitWriter) WriteQuat(q mgl32.Quat) {
	w.WriteFloat32(q.W)
	w.WriteVec3(q.V)
}

// Truncate drops everything written after the first n bits.
func (w *BitWriter) Truncate(n int) {
	if n < 0 || n >= w.nbit {
		return
	}
	w.nbit = n
	w.buf = w.buf[:(n+7)/8]
	if r := n % 8; r != 0 {
		w.buf[len(w.buf)-1] &= byte(0xFF) << uint(8-r)
	}
}

// BitLen returns the number of bits written.
func (w *BitWriter) BitLen() int { return w.nbit }

// Bytes returns the stream padded to a byte boundary.
func (w *BitWriter) Bytes() []byte { return w.buf }

// BitReader reads fields written by BitWriter. The first failure is sticky:
// later reads return zero values until Seek clears it.
type BitReader struct {
	data  []byte
	pos   int
	limit int
	err   error
}

func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data, limit: len(data) * 8}
}

func (r *BitReader) Err() error { return r.err }

// Pos returns the current bit position.
func (r *BitReader) Pos() int { return r.pos }

// Limit returns the bit position reads may not cross.
func (r *BitReader) Limit() int { return r.limit }

// SetLimit narrows (or restores) the readable window, capped at the data end.
func (r *BitReader) SetLimit(limit int) {
	if end := len(r.data) * 8; limit > end {
		limit = end
	}
	r.limit = limit
}

// Seek moves to bit position pos and clears any error. It reports false
// when pos lies past the data.
func (r *BitReader) Seek(pos int) bool {
	if pos < 0 || pos > len(r.data)*8 {
		r.err = ErrShortRead
		return false
	}
	r.pos = pos
	r.err = nil
	return true
}

// Remaining returns the bits left before the limit.
func (r *BitReader) Remaining() int { return r.limit - r.pos }

func (r *BitReader) ReadBits(n int) uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos+n > r.limit {
		r.err = ErrShortRead
		r.pos = r.limit
		return 0
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit := r.data[r.pos/8] >> uint(7-r.pos%8) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v
}

func (r *BitReader) ReadBool() bool { return r.ReadBits(1) == 1 }

func (r *BitReader) ReadFloat32() float32 {
	return math.Float32frombits(uint32(r.ReadBits(32)))
}

// ReadRanged reads a value written by WriteRanged with the same bounds.
func (r *BitReader) ReadRanged(min, max int64) int64 {
	v := int64(r.ReadBits(BitsFor(uint64(max-min)))) + min
	if r.err != nil {
		return min
	}
	if v > max {
		r.err = ErrOutOfRange
		return min
	}
	return v
}

func (r *BitReader) ReadString() string {
	n := int(r.ReadBits(8))
	if r.err != nil || n == 0 {
		return ""
	}
	raw := make([]byte, n)
	for i := range raw {
		raw[i] = byte(r.ReadBits(8))
	}
	if r.err != nil {
		return ""
	}
	return ms950ToUTF8(raw)
}

func (r *BitReader) ReadVec3() mgl32.Vec3 {
	return mgl32.Vec3{r.ReadFloat32(), r.ReadFloat32(), r.ReadFloat32()}
}

func (r *BitReader) ReadQuat() mgl32.Quat {
	w := r.ReadFloat32()
	return mgl32.Quat{W: w, V: r.ReadVec3()}
}

// WireString returns s as a bitstream string carries it exactly: runes Big5
// cannot hold become '?' and the encoding is cut to MaxStringBytes on a
// character boundary. ok is false when anything was replaced or cut.
func WireString(s string) (out string, ok bool) {
	ascii := len(s) <= MaxStringBytes
	for i := 0; ascii && i < len(s); i++ {
		ascii = s[i] < 0x80
	}
	if ascii {
		return s, true
	}

	enc := traditionalchinese.Big5.NewEncoder()
	dec := traditionalchinese.Big5.NewDecoder()
	var b strings.Builder
	n := 0
	ok = true
	for _, r := range s {
		size := 1
		if r >= 0x80 {
			raw, err := enc.String(string(r))
			if err == nil {
				if back, err := dec.String(raw); err != nil || back != string(r) {
					raw = ""
				}
			}
			if err != nil || raw == "" || r == utf8.RuneError {
				r = '?'
				ok = false
			} else {
				size = len(raw)
			}
		}
		if n+size > MaxStringBytes {
			return b.String(), false
		}
		b.WriteRune(r)
		n += size
	}
	return b.String(), ok
}

// Representable reports whether s crosses the wire unchanged.
func Representable(s string) bool {
	_, ok := WireString(s)
	return ok
}

// utf8ToMS950 將 UTF-8 字串轉為 MS950 (Big5) 位元組。
func utf8ToMS950(s string) []byte {
	allASCII := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			allASCII = false
			break
		}
	}
	if allASCII {
		return []byte(s)
	}
	enc := encoding.ReplaceUnsupported(traditionalchinese.Big5.NewEncoder())
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
