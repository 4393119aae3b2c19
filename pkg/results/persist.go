package results

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/testfang/pkg/bitlist"
	"github.com/Sumatoshi-tech/testfang/pkg/idmanager"
	"github.com/Sumatoshi-tech/testfang/pkg/revision"
	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
	"github.com/Sumatoshi-tech/testfang/pkg/sodaio"
)

// revisionEntrySize is the encoded width of one [rev u32][row u64] pair.
const revisionEntrySize = 4 + 8

// Save writes the revision index (REVISIONS), the test case table (TCLIST)
// and the execution and pass bit matrices (EXECUTION, PASSED) to w. Matrix
// rows are numbered in ascending revision order.
func (m *Matrix) Save(w *sodaio.Writer) error {
	m.RefitSize()

	revs := m.Revisions()

	if err := w.WriteChunk(sodaio.Revisions, encodeRevisions(revs)); err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	if err := m.testcases.Save(w, sodaio.TCList); err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	for _, part := range []struct {
		id     sodaio.ChunkID
		matrix *revision.Matrix
	}{
		{sodaio.Execution, m.executed},
		{sodaio.Passed, m.passed},
	} {
		if err := w.WriteChunk(part.id, encodeRows(part.matrix, revs, m.testcases.Len())); err != nil {
			return fmt.Errorf("save results: %w", err)
		}
	}

	return nil
}

// encodeRevisions lays out [count u32] then [rev u32][row u64] per revision.
func encodeRevisions(revs []uint32) []byte {
	enc := sodaio.NewEncoder(4 + len(revs)*revisionEntrySize)
	enc.Uint32(safeconv.MustIntToUint32(len(revs)))

	for i, rev := range revs {
		enc.Uint32(rev)
		enc.Uint64(safeconv.MustIntToUint64(i))
	}

	return enc.Bytes()
}

func encodeRows(matrix *revision.Matrix, revs []uint32, width int) []byte {
	rows := make([]*bitlist.List, len(revs))
	for i, rev := range revs {
		rows[i], _ = matrix.Row(rev)
	}

	return sodaio.EncodeBitMatrix(safeconv.MustIntToUint64(len(rows)), safeconv.MustIntToUint64(width),
		func(row, col uint64) bool {
			return rows[row].Get(int(col))
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

// Load replaces the contents with the REVISIONS, TCLIST, EXECUTION and
// PASSED chunks of r. All four must be present, in any order. The bit
// matrices are decoded last so their dimensions can be checked against the
// revision index and the test case table.
func (m *Matrix) Load(r *sodaio.Reader) error {
	var (
		testcases  *idmanager.Table
		revs       map[uint32]uint64
		exec, pass *sodaio.Decoder
	)

	for r.Next() {
		var err error

		switch r.ChunkID() {
		case sodaio.TCList:
			testcases = idmanager.New()
			err = testcases.Load(r)
		case sodaio.Revisions:
			revs, err = decodeRevisions(r)
		case sodaio.Execution:
			exec, err = r.Decoder()
		case sodaio.Passed:
			pass, err = r.Decoder()
		}

		if err != nil {
			return fmt.Errorf("load results: %w", err)
		}
	}

	if err := r.Err(); err != nil {
		return fmt.Errorf("load results: %w", err)
	}

	if testcases == nil || revs == nil || exec == nil || pass == nil {
		return fmt.Errorf("%w: no results matrix info in this stream", sodaio.ErrCorruptFormat)
	}

	executed, err := decodeRows(exec, revs, testcases.Len())
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}

	passed, err := decodeRows(pass, revs, testcases.Len())
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}

	m.testcases = testcases
	m.executed = executed
	m.passed = passed

	return nil
}

// decodeRevisions reads a REVISIONS payload. Row indices must be a
// permutation of 0..count-1.
func decodeRevisions(r *sodaio.Reader) (map[uint32]uint64, error) {
	dec, err := r.Decoder()
	if err != nil {
		return nil, err
	}

	count := dec.Uint32()
	if err = dec.Err(); err != nil {
		return nil, err
	}

	if uint64(dec.Remaining()) != uint64(count)*revisionEntrySize {
		return nil, fmt.Errorf("%w: %d revisions in %d bytes", sodaio.ErrCorruptFormat, count, dec.Remaining())
	}

	revs := make(map[uint32]uint64, count)
	used := make(map[uint64]bool, count)

	for range count {
		rev, row := dec.Uint32(), dec.Uint64()

		if _, dup := revs[rev]; dup {
			return nil, fmt.Errorf("%w: duplicate revision %d", sodaio.ErrCorruptFormat, rev)
		}

		if row >= uint64(count) || used[row] {
			return nil, fmt.Errorf("%w: revision %d maps to row %d", sodaio.ErrCorruptFormat, rev, row)
		}

		revs[rev] = row
		used[row] = true
	}

	return revs, dec.Err()
}

func decodeRows(dec *sodaio.Decoder, revs map[uint32]uint64, width int) (*revision.Matrix, error) {
	rows := make([]*bitlist.List, len(revs))

	err := sodaio.DecodeBitMatrix(dec, safeconv.MustIntToUint64(len(rows)), safeconv.MustIntToUint64(width),
		func(row, col uint64) {
			if rows[row] == nil {
				rows[row] = bitlist.NewSized(width)
			}

			_ = rows[row].Set(int(col), true)
		})
	if err != nil {
		return nil, err
	}

	out := revision.NewMatrix()
	for rev, row := range revs {
		if rows[row] == nil {
			rows[row] = bitlist.NewSized(width)
		}

		out.Put(rev, rows[row])
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
