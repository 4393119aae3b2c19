// Package revision provides a bit matrix indexed by revision number.
//
// Each revision owns one bitlist.List row whose columns are code element ids.
// Revision numbers need not be contiguous. Rows are kept in an ordered tree so
// iteration, and therefore serialization, is always in ascending revision order.
package revision

import (
	"errors"
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/Sumatoshi-tech/testfang/pkg/bitlist"
)

// ErrNotFound is returned when a revision has no row.
var ErrNotFound = errors.New("revision: not found")

// Matrix maps revision numbers to rows. It is not safe for concurrent use.
type Matrix struct {
	rows *redblacktree.Tree // uint32 -> *bitlist.List
}

// NewMatrix returns an empty Matrix.
func NewMatrix() *Matrix {
	return &Matrix{rows: redblacktree.NewWith(utils.UInt32Comparator)}
}

// Add creates a zero-filled row of width columns for rev. It is a no-op when
// rev already has a row.
func (m *Matrix) Add(rev uint32, width int) {
	if _, found := m.rows.Get(rev); found {
		return
	}

	m.rows.Put(rev, bitlist.NewSized(width))
}

// Put stores row under rev, replacing any existing row.
func (m *Matrix) Put(rev uint32, row *bitlist.List) {
	m.rows.Put(rev, row)
}

// Remove deletes the row of rev, if any.
func (m *Matrix) Remove(rev uint32) {
	m.rows.Remove(rev)
}

// Has reports whether rev has a row.
func (m *Matrix) Has(rev uint32) bool {
	_, found := m.rows.Get(rev)

	return found
}

// Row returns the row of rev. The row is shared, not copied.
func (m *Matrix) Row(rev uint32) (*bitlist.List, error) {
	v, found := m.rows.Get(rev)
	if !found {
		return nil, fmt.Errorf("%w: revision %d", ErrNotFound, rev)
	}

	row, _ := v.(*bitlist.List)

	return row, nil
}

// Len returns the number of revisions.
func (m *Matrix) Len() int { return m.rows.Size() }

// Revisions returns every revision number in ascending order.
func (m *Matrix) Revisions() []uint32 {
	revs := make([]uint32, 0, m.rows.Size())

	m.Each(func(rev uint32, _ *bitlist.List) {
		revs = append(revs, rev)
	})

	return revs
}

// Each calls fn for every row in ascending revision order.
func (m *Matrix) Each(fn func(rev uint32, row *bitlist.List)) {
	it := m.rows.Iterator()
	for it.Next() {
		rev, _ := it.Key().(uint32)
		row, _ := it.Value().(*bitlist.List)

		fn(rev, row)
	}
}

// RefitSize pads every row with false columns up to width. Rows wider than
// width are left alone.
func (m *Matrix) RefitSize(width int) {
	m.Each(func(_ uint32, row *bitlist.List) {
		if row.Len() < width {
			row.Resize(width)
		}
	})
}

// AddColumn appends one false column to every row.
func (m *Matrix) AddColumn() {
	m.Each(func(_ uint32, row *bitlist.List) {
		row.PushBack(false)
	})
}

// RemoveColumnAt erases column col from every row that has it, shifting later
// columns left.
func (m *Matrix) RemoveColumnAt(col int) {
	m.Each(func(_ uint32, row *bitlist.List) {
		if col < row.Len() {
			_ = row.Erase(col)
		}
	})
}

// Widths returns the distinct row widths. A consistent matrix has at most one.
func (m *Matrix) Widths() []int {
	seen := make(map[int]struct{})

	var widths []int

	m.Each(func(_ uint32, row *bitlist.List) {
		if _, ok := seen[row.Len()]; !ok {
			seen[row.Len()] = struct{}{}
			widths = append(widths, row.Len())
		}
	})

	return widths
}

// Clear removes every row.
func (m *Matrix) Clear() { m.rows.Clear() }
