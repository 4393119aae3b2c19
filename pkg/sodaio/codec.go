package sodaio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encoder builds a chunk payload in memory.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity for size bytes.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

// Uint32 appends v.
func (e *Encoder) Uint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

// Uint64 appends v.
func (e *Encoder) Uint64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

// Bool appends v as a single 0/1 byte.
func (e *Encoder) Bool(v bool) {
	var b byte
	if v {
		b = 1
	}

	e.buf = append(e.buf, b)
}

// CString appends s followed by a NUL byte.
func (e *Encoder) CString(s string) {
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

// Raw appends p unchanged.
func (e *Encoder) Raw(p []byte) { e.buf = append(e.buf, p...) }

// Bytes returns the encoded payload.
func (e *Encoder) Bytes() []byte { return e.buf }

// Decoder reads fields from a chunk payload. The first short read is sticky:
// later calls return zero values and Err reports ErrCorruptFormat.
type Decoder struct {
	id  ChunkID
	buf []byte
	off int
	err error
}

// NewDecoder returns a Decoder over payload, tagging errors with id.
func NewDecoder(id ChunkID, payload []byte) *Decoder {
	return &Decoder{id: id, buf: payload}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}

	if n < 0 || len(d.buf)-d.off < n {
		d.err = fmt.Errorf("%w: %s payload ends at byte %d, need %d more",
			ErrCorruptFormat, d.id, d.off, n)

		return nil
	}

	p := d.buf[d.off : d.off+n]
	d.off += n

	return p
}

// Uint32 reads a little-endian uint32.
func (d *Decoder) Uint32() uint32 {
	p := d.take(4)
	if p == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(p)
}

// Uint64 reads a little-endian uint64.
func (d *Decoder) Uint64() uint64 {
	p := d.take(8)
	if p == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(p)
}

// Bool reads one byte; any non-zero value is true.
func (d *Decoder) Bool() bool {
	p := d.take(1)

	return p != nil && p[0] != 0
}

// CString reads bytes up to and including a NUL terminator.
func (d *Decoder) CString() string {
	if d.err != nil {
		return ""
	}

	end := bytes.IndexByte(d.buf[d.off:], 0)
	if end < 0 {
		d.err = fmt.Errorf("%w: %s payload has unterminated string at byte %d",
			ErrCorruptFormat, d.id, d.off)

		return ""
	}

	s := string(d.buf[d.off : d.off+end])
	d.off += end + 1

	return s
}

// Raw reads n bytes.
func (d *Decoder) Raw(n int) []byte { return d.take(n) }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// Err returns the first decoding error.
func (d *Decoder) Err() error { return d.err }
