package sodaio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
)

// Reader walks the chunks of a SoDA stream.
//
//	for r.Next() {
//		switch r.ChunkID() { ... }
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	buf       *bufio.Reader
	closer    io.Closer
	id        ChunkID
	length    uint64
	remaining uint64 // Unread bytes of the current payload.
	err       error
}

// NewReader validates the magic number and returns a Reader over r.
func NewReader(r io.Reader) (*Reader, error) {
	sr := &Reader{buf: bufio.NewReader(r)}

	var magic [4]byte

	if _, err := io.ReadFull(sr.buf, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %w", ErrCorruptFormat, err)
	}

	if got := binary.LittleEndian.Uint32(magic[:]); got != Magic {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrCorruptFormat, got)
	}

	return sr, nil
}

// Open opens the file at path for reading. A ".lz4" suffix unwraps an LZ4
// frame.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var src io.Reader = f
	if isCompressed(path) {
		src = lz4.NewReader(f)
	}

	sr, err := NewReader(src)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("%s: %w", path, err)
	}

	sr.closer = f

	return sr, nil
}

// Next advances to the next chunk, skipping whatever is left of the current
// payload. It returns false at the end of the stream or on error.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}

	if r.remaining > 0 {
		skip, convErr := safeconv.Uint64ToInt(r.remaining)
		if convErr != nil {
			r.fail(fmt.Errorf("%w: %s payload of %d bytes", ErrCorruptFormat, r.id, r.remaining))

			return false
		}

		if _, err := io.CopyN(io.Discard, r.buf, int64(skip)); err != nil {
			r.fail(fmt.Errorf("%w: skip %s payload: %w", ErrCorruptFormat, r.id, err))

			return false
		}

		r.remaining = 0
	}

	var header [headerSize]byte

	n, err := io.ReadFull(r.buf, header[:])

	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return false
	case err != nil:
		r.fail(fmt.Errorf("%w: truncated chunk header: %w", ErrCorruptFormat, err))

		return false
	}

	r.id = ChunkID(binary.LittleEndian.Uint32(header[:4]))
	r.length = binary.LittleEndian.Uint64(header[4:])
	r.remaining = r.length

	return true
}

// ChunkID returns the id of the current chunk.
func (r *Reader) ChunkID() ChunkID { return r.id }

// Len returns the declared payload length of the current chunk.
func (r *Reader) Len() uint64 { return r.length }

// Payload reads the unread remainder of the current chunk payload.
func (r *Reader) Payload() ([]byte, error) {
	n, err := safeconv.Uint64ToInt(r.remaining)
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload of %d bytes", ErrCorruptFormat, r.id, r.remaining)
	}

	// The buffer grows with the bytes actually read, never with the declared
	// length.
	payload, readErr := io.ReadAll(io.LimitReader(r.buf, int64(n)))
	if readErr == nil && len(payload) < n {
		readErr = io.ErrUnexpectedEOF
	}

	if readErr != nil {
		r.fail(fmt.Errorf("%w: truncated %s payload: %w", ErrCorruptFormat, r.id, readErr))

		return nil, r.err
	}

	r.remaining = 0

	return payload, nil
}

// Decoder returns a Decoder over the current chunk payload.
func (r *Reader) Decoder() (*Decoder, error) {
	payload, err := r.Payload()
	if err != nil {
		return nil, err
	}

	return NewDecoder(r.id, payload), nil
}

// Err returns the first error Next encountered.
func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Close closes the file opened by Open. It is a no-op for readers built with
// NewReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}

	err := r.closer.Close()
	r.closer = nil

	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}
