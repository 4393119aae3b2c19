package sodaio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
)

// Writer emits a SoDA stream. The magic number is written on construction.
type Writer struct {
	buf     *bufio.Writer
	closers []io.Closer // Closed in order after the buffer is flushed.
}

// NewWriter writes the magic number to w and returns a Writer over it. The
// caller keeps ownership of w; Close only flushes.
func NewWriter(w io.Writer) (*Writer, error) {
	sw := &Writer{buf: bufio.NewWriter(w)}

	magic := binary.LittleEndian.AppendUint32(nil, Magic)

	if _, err := sw.buf.Write(magic); err != nil {
		return nil, fmt.Errorf("write magic: %w", err)
	}

	return sw, nil
}

// Create creates or truncates the file at path and returns a Writer over it.
// A ".lz4" suffix wraps the stream in an LZ4 frame.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	var (
		dst     io.Writer = f
		closers []io.Closer
	)

	if isCompressed(path) {
		zw := lz4.NewWriter(f)
		dst = zw
		closers = append(closers, zw)
	}

	closers = append(closers, f)

	sw, err := NewWriter(dst)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}

		return nil, err
	}

	sw.closers = closers

	return sw, nil
}

// WriteChunk writes a complete chunk: header followed by payload.
func (w *Writer) WriteChunk(id ChunkID, payload []byte) error {
	header := make([]byte, 0, headerSize)
	header = binary.LittleEndian.AppendUint32(header, uint32(id))
	header = binary.LittleEndian.AppendUint64(header, uint64(len(payload)))

	if _, err := w.buf.Write(header); err != nil {
		return fmt.Errorf("write %s header: %w", id, err)
	}

	if _, err := w.buf.Write(payload); err != nil {
		return fmt.Errorf("write %s payload: %w", id, err)
	}

	return nil
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	return nil
}

// Close flushes the stream and closes anything Create opened.
func (w *Writer) Close() error {
	firstErr := w.Flush()

	for _, c := range w.closers {
		if closeErr := c.Close(); closeErr != nil && firstErr == nil {
			firstErr = fmt.Errorf("close: %w", closeErr)
		}
	}

	w.closers = nil

	return firstErr
}
