package changeset

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/testfang/pkg/bitlist"
	"github.com/Sumatoshi-tech/testfang/pkg/idmanager"
	"github.com/Sumatoshi-tech/testfang/pkg/revision"
	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
	"github.com/Sumatoshi-tech/testfang/pkg/sodaio"
)

// revNumSize is the encoded width of a revision number.
const revNumSize = 4

// Save writes the code element table (PRLIST) and the change matrix
// (CHANGESET) to w.
func (c *Changeset) Save(w *sodaio.Writer) error {
	if err := c.checkWidths(); err != nil {
		return err
	}

	if err := c.codeElements.Save(w, sodaio.PRList); err != nil {
		return fmt.Errorf("save changeset: %w", err)
	}

	if err := w.WriteChunk(sodaio.Changeset, c.encodeMatrix()); err != nil {
		return fmt.Errorf("save changeset: %w", err)
	}

	return nil
}

// encodeMatrix lays out [revs u32][ces u32] then per revision [rev u32]
// followed by one 0/1 byte per code element.
func (c *Changeset) encodeMatrix() []byte {
	ceCount := c.codeElements.Len()
	revCount := c.changes.Len()

	enc := sodaio.NewEncoder(revCount*(revNumSize+ceCount) + 2*revNumSize)
	enc.Uint32(safeconv.MustIntToUint32(revCount))
	enc.Uint32(safeconv.MustIntToUint32(ceCount))

	c.changes.Each(func(rev uint32, row *bitlist.List) {
		enc.Uint32(rev)

		it := row.Iter()
		for range ceCount {
			v, _ := it.Next()
			enc.Bool(v)
		}
	})

	return enc.Bytes()
}

// SaveFile writes the changeset to a new file at path.
func (c *Changeset) SaveFile(path string) error {
	w, err := sodaio.Create(path)
	if err != nil {
		return err
	}

	saveErr := c.Save(w)
	closeErr := w.Close()

	return errors.Join(saveErr, closeErr)
}

// Load replaces the contents with the PRLIST and CHANGESET chunks of r.
// Other chunks are skipped. Both chunks must be present.
func (c *Changeset) Load(r *sodaio.Reader) error {
	var (
		names   *idmanager.Table
		rows    *revision.Matrix
		ceCount int
	)

	for r.Next() {
		switch r.ChunkID() {
		case sodaio.PRList:
			names = idmanager.New()

			if err := names.Load(r); err != nil {
				return fmt.Errorf("load changeset: %w", err)
			}
		case sodaio.Changeset:
			dec, err := r.Decoder()
			if err != nil {
				return fmt.Errorf("load changeset: %w", err)
			}

			rows, ceCount, err = decodeMatrix(dec)
			if err != nil {
				return fmt.Errorf("load changeset: %w", err)
			}
		}
	}

	if err := r.Err(); err != nil {
		return fmt.Errorf("load changeset: %w", err)
	}

	if names == nil || rows == nil {
		return fmt.Errorf("%w: no changeset info in this stream", sodaio.ErrCorruptFormat)
	}

	if ceCount != names.Len() {
		return fmt.Errorf("%w: changeset has %d columns, code element table has %d",
			sodaio.ErrCorruptFormat, ceCount, names.Len())
	}

	*c.codeElements = *names

	c.changes.Clear()
	rows.Each(c.changes.Put)

	return nil
}

func decodeMatrix(dec *sodaio.Decoder) (*revision.Matrix, int, error) {
	revCount := int(dec.Uint32())
	ceCount := int(dec.Uint32())

	if err := dec.Err(); err != nil {
		return nil, 0, err
	}

	if dec.Remaining() != revCount*(revNumSize+ceCount) {
		return nil, 0, fmt.Errorf("%w: changeset payload of %d bytes for %d revisions of %d code elements",
			sodaio.ErrCorruptFormat, dec.Remaining(), revCount, ceCount)
	}

	rows := revision.NewMatrix()

	for range revCount {
		rev := dec.Uint32()
		if rows.Has(rev) {
			return nil, 0, fmt.Errorf("%w: duplicate revision %d", sodaio.ErrCorruptFormat, rev)
		}

		row := bitlist.New()
		for range ceCount {
			row.PushBack(dec.Bool())
		}

		rows.Put(rev, row)
	}

	if err := dec.Err(); err != nil {
		return nil, 0, err
	}

	return rows, ceCount, nil
}

// LoadFile replaces the contents with the changeset stored at path.
func (c *Changeset) LoadFile(path string) error {
	r, err := sodaio.Open(path)
	if err != nil {
		return err
	}

	loadErr := c.Load(r)
	closeErr := r.Close()

	return errors.Join(loadErr, closeErr)
}

// Open loads the changeset stored at path into a new Changeset.
func Open(path string) (*Changeset, error) {
	c := New()

	if err := c.LoadFile(path); err != nil {
		return nil, err
	}

	return c, nil
}
