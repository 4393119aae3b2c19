package sodaio

import "fmt"

// PackedSize returns the number of bytes needed to hold n packed bits.
func PackedSize(n uint64) uint64 {
	return (n + 7) / 8
}

// BitWriter packs bits least-significant first into bytes.
type BitWriter struct {
	buf   []byte
	cur   byte
	shift uint
}

// NewBitWriter returns a BitWriter sized for n bits.
func NewBitWriter(n uint64) *BitWriter {
	return &BitWriter{buf: make([]byte, 0, PackedSize(n))}
}

// WriteBit appends one bit.
func (w *BitWriter) WriteBit(v bool) {
	if v {
		w.cur |= 1 << w.shift
	}

	w.shift++

	if w.shift == 8 {
		w.buf = append(w.buf, w.cur)
		w.cur, w.shift = 0, 0
	}
}

// Bytes flushes a partial byte, padded with zero bits, and returns the packed
// data. The writer must not be used afterwards.
func (w *BitWriter) Bytes() []byte {
	if w.shift > 0 {
		w.buf = append(w.buf, w.cur)
		w.cur, w.shift = 0, 0
	}

	return w.buf
}

// BitReader unpacks bits written by BitWriter.
type BitReader struct {
	buf   []byte
	off   int
	shift uint
}

// NewBitReader returns a BitReader over packed.
func NewBitReader(packed []byte) *BitReader {
	return &BitReader{buf: packed}
}

// ReadBit returns the next bit. Reading past the end yields false.
func (r *BitReader) ReadBit() bool {
	if r.off >= len(r.buf) {
		return false
	}

	v := r.buf[r.off]&(1<<r.shift) != 0

	r.shift++

	if r.shift == 8 {
		r.off++
		r.shift = 0
	}

	return v
}

// bitMatrixHeader is the size of the [rows u64][cols u64] prefix.
const bitMatrixHeader = 16

// EncodeBitMatrix lays out [rows u64][cols u64] then the row-major bits
// packed least-significant first.
func EncodeBitMatrix(rows, cols uint64, bit func(row, col uint64) bool) []byte {
	bw := NewBitWriter(rows * cols)

	for r := range rows {
		for c := range cols {
			bw.WriteBit(bit(r, c))
		}
	}

	packed := bw.Bytes()

	enc := NewEncoder(bitMatrixHeader + len(packed))
	enc.Uint64(rows)
	enc.Uint64(cols)
	enc.Raw(packed)

	return enc.Bytes()
}

// DecodeBitMatrix reads a payload written by EncodeBitMatrix. The declared
// dimensions must equal rows x cols and the packed data must fit them
// exactly; nothing is allocated before both checks pass. set is called for
// every true bit in row-major order.
func DecodeBitMatrix(dec *Decoder, rows, cols uint64, set func(row, col uint64)) error {
	rawRows, rawCols := dec.Uint64(), dec.Uint64()
	if err := dec.Err(); err != nil {
		return err
	}

	if rawRows != rows || rawCols != cols {
		return fmt.Errorf("%w: %s is %dx%d, tables are %dx%d",
			ErrCorruptFormat, dec.id, rawRows, rawCols, rows, cols)
	}

	want := PackedSize(rows * cols)
	if uint64(dec.Remaining()) != want {
		return fmt.Errorf("%w: %s payload holds %d bytes, want %d",
			ErrCorruptFormat, dec.id, dec.Remaining(), want)
	}

	br := NewBitReader(dec.Raw(dec.Remaining()))

	for r := range rows {
		for c := range cols {
			if br.ReadBit() {
				set(r, c)
			}
		}
	}

	return nil
}
