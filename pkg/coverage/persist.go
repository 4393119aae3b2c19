package coverage

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/testfang/pkg/bitlist"
	"github.com/Sumatoshi-tech/testfang/pkg/idmanager"
	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
	"github.com/Sumatoshi-tech/testfang/pkg/sodaio"
)

// Save writes the test case table (TCLIST), the code element table (PRLIST)
// and the packed bit matrix (COVERAGE) to w.
func (m *Matrix) Save(w *sodaio.Writer) error {
	m.RefitSize()

	if err := m.testcases.Save(w, sodaio.TCList); err != nil {
		return fmt.Errorf("save coverage: %w", err)
	}

	if err := m.codeElements.Save(w, sodaio.PRList); err != nil {
		return fmt.Errorf("save coverage: %w", err)
	}

	if err := w.WriteChunk(sodaio.Coverage, m.encodeBits()); err != nil {
		return fmt.Errorf("save coverage: %w", err)
	}

	return nil
}

func (m *Matrix) encodeBits() []byte {
	rows := safeconv.MustIntToUint64(len(m.rows))
	cols := safeconv.MustIntToUint64(m.codeElements.Len())

	return sodaio.EncodeBitMatrix(rows, cols, func(row, col uint64) bool {
		return m.rows[row].Get(int(col))
	})
}

// SaveFile writes the matrix to a new file at path.
func (m *Matrix) SaveFile(path string) error {
	w, err := sodaio.Create(path)
	if err != nil {
		return err
	}

	saveErr := m.Save(w)
	closeErr := w.Close()

	return errors.Join(saveErr, closeErr)
}

// Load replaces the contents with the TCLIST, PRLIST and COVERAGE chunks of
// r. All three must be present, in any order. The bit matrix is decoded last
// so its declared dimensions can be checked against the tables first.
func (m *Matrix) Load(r *sodaio.Reader) error {
	var (
		testcases    *idmanager.Table
		codeElements *idmanager.Table
		bits         *sodaio.Decoder
	)

	for r.Next() {
		var err error

		switch r.ChunkID() {
		case sodaio.TCList:
			testcases = idmanager.New()
			err = testcases.Load(r)
		case sodaio.PRList:
			codeElements = idmanager.New()
			err = codeElements.Load(r)
		case sodaio.Coverage:
			bits, err = r.Decoder()
		}

		if err != nil {
			return fmt.Errorf("load coverage: %w", err)
		}
	}

	if err := r.Err(); err != nil {
		return fmt.Errorf("load coverage: %w", err)
	}

	if testcases == nil || codeElements == nil || bits == nil {
		return fmt.Errorf("%w: no coverage info in this stream", sodaio.ErrCorruptFormat)
	}

	rows, err := decodeBits(bits, testcases.Len(), codeElements.Len())
	if err != nil {
		return fmt.Errorf("load coverage: %w", err)
	}

	m.testcases = testcases
	m.codeElements = codeElements
	m.rows = rows

	return nil
}

// decodeBits unpacks a COVERAGE payload that must describe a rows x cols
// matrix.
func decodeBits(dec *sodaio.Decoder, rows, cols int) ([]*bitlist.List, error) {
	// Rows are allocated only after the payload size has been checked.
	out := make([]*bitlist.List, rows)

	err := sodaio.DecodeBitMatrix(dec, safeconv.MustIntToUint64(rows), safeconv.MustIntToUint64(cols),
		func(row, col uint64) {
			if out[row] == nil {
				out[row] = bitlist.NewSized(cols)
			}

			_ = out[row].Set(int(col), true)
		})
	if err != nil {
		return nil, err
	}

	for i := range out {
		if out[i] == nil {
			out[i] = bitlist.NewSized(cols)
		}
	}

	return out, nil
}

// LoadFile replaces the contents with the matrix stored at path.
func (m *Matrix) LoadFile(path string) error {
	r, err := sodaio.Open(path)
	if err != nil {
		return err
	}

	loadErr := m.Load(r)
	closeErr := r.Close()

	return errors.Join(loadErr, closeErr)
}

// Open loads the matrix stored at path into a new Matrix.
func Open(path string) (*Matrix, error) {
	m := New()

	if err := m.LoadFile(path); err != nil {
		return nil, err
	}

	return m, nil
}
