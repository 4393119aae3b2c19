// Package bitlist provides a sparse, growable boolean sequence.
//
// A List stores only the positions that hold true, kept sorted. Coverage and
// changeset rows are overwhelmingly false, so a row costs memory proportional to
// the number of covered (or changed) code elements rather than to the width of
// the matrix.
package bitlist

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

var (
	// ErrOutOfRange is returned when a position falls outside [0, Len()).
	ErrOutOfRange = errors.New("bitlist: position out of range")

	// ErrEmpty is returned by pop, front and back on a zero-length list.
	ErrEmpty = errors.New("bitlist: list is empty")
)

// List is a sparse bit vector. The zero value is an empty list ready for use.
// A List is not safe for concurrent mutation.
type List struct {
	size int
	ones []int // Sorted, unique, each < size.
}

// New returns an empty list.
func New() *List {
	return &List{}
}

// NewSized returns a list of n false positions.
func NewSized(n int) *List {
	if n < 0 {
		n = 0
	}

	return &List{size: n}
}

// FromBools builds a list whose positions mirror values.
func FromBools(values ...bool) *List {
	l := NewSized(len(values))

	for i, v := range values {
		if v {
			l.ones = append(l.ones, i)
		}
	}

	return l
}

// Len returns the logical length of the list.
func (l *List) Len() int { return l.size }

// Count returns the number of true positions.
func (l *List) Count() int { return len(l.ones) }

// search returns the slot of pos in ones and whether it is present.
func (l *List) search(pos int) (int, bool) {
	return slices.BinarySearch(l.ones, pos)
}

func (l *List) checkRange(pos int) error {
	if pos < 0 || pos >= l.size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, pos, l.size)
	}

	return nil
}

// At reports the value at pos.
func (l *List) At(pos int) (bool, error) {
	if err := l.checkRange(pos); err != nil {
		return false, err
	}

	return l.Get(pos), nil
}

// Get reports the value at pos without a bounds check. Positions outside the
// list read as false.
func (l *List) Get(pos int) bool {
	_, found := l.search(pos)

	return found
}

// Set stores value at pos.
func (l *List) Set(pos int, value bool) error {
	if err := l.checkRange(pos); err != nil {
		return err
	}

	l.set(pos, value)

	return nil
}

func (l *List) set(pos int, value bool) {
	idx, found := l.search(pos)

	switch {
	case value && !found:
		l.ones = slices.Insert(l.ones, idx, pos)
	case !value && found:
		l.ones = slices.Delete(l.ones, idx, idx+1)
	}
}

// Toggle flips the value at pos.
func (l *List) Toggle(pos int) error {
	if err := l.checkRange(pos); err != nil {
		return err
	}

	l.set(pos, !l.Get(pos))

	return nil
}

// PushBack appends one position holding value.
func (l *List) PushBack(value bool) {
	if value {
		l.ones = append(l.ones, l.size)
	}

	l.size++
}

// PopBack removes the last position.
func (l *List) PopBack() error {
	if l.size == 0 {
		return ErrEmpty
	}

	l.size--

	if n := len(l.ones); n > 0 && l.ones[n-1] == l.size {
		l.ones = l.ones[:n-1]
	}

	return nil
}

// PopFront removes the first position and shifts every other position left.
func (l *List) PopFront() error {
	if l.size == 0 {
		return ErrEmpty
	}

	return l.Erase(0)
}

// Erase removes the position pos, shifting every later position left by one.
func (l *List) Erase(pos int) error {
	if err := l.checkRange(pos); err != nil {
		return err
	}

	idx, found := l.search(pos)
	if found {
		l.ones = slices.Delete(l.ones, idx, idx+1)
	}

	for i := idx; i < len(l.ones); i++ {
		l.ones[i]--
	}

	l.size--

	return nil
}

// Resize changes the logical length. Shrinking drops the true positions past
// the new end; growing adds false positions.
func (l *List) Resize(n int) {
	if n < 0 {
		n = 0
	}

	if n < l.size {
		idx, _ := l.search(n)
		l.ones = l.ones[:idx]
	}

	l.size = n
}

// Clear sets every position to false, keeping the length.
func (l *List) Clear() {
	l.ones = l.ones[:0]
}

// Front reports the value of the first position.
func (l *List) Front() (bool, error) {
	if l.size == 0 {
		return false, ErrEmpty
	}

	return len(l.ones) > 0 && l.ones[0] == 0, nil
}

// Back reports the value of the last position.
func (l *List) Back() (bool, error) {
	if l.size == 0 {
		return false, ErrEmpty
	}

	n := len(l.ones)

	return n > 0 && l.ones[n-1] == l.size-1, nil
}

// Equal reports whether both lists have the same length and values.
func (l *List) Equal(other *List) bool {
	if other == nil {
		return false
	}

	return l.size == other.size && slices.Equal(l.ones, other.ones)
}

// Clone returns an independent copy.
func (l *List) Clone() *List {
	return &List{size: l.size, ones: slices.Clone(l.ones)}
}

// Ones returns the true positions in ascending order.
func (l *List) Ones() iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, pos := range l.ones {
			if !yield(pos) {
				return
			}
		}
	}
}

// All yields every position with its value, in order.
func (l *List) All() iter.Seq2[int, bool] {
	return func(yield func(int, bool) bool) {
		it := l.Iter()

		for {
			pos := it.Pos()

			v, ok := it.Next()
			if !ok || !yield(pos, v) {
				return
			}
		}
	}
}

// Iter returns a cursor positioned before the first slot.
func (l *List) Iter() Iterator {
	return Iterator{ones: l.ones, size: l.size}
}

// String renders the list as a run of 0 and 1 characters.
func (l *List) String() string {
	buf := make([]byte, l.size)

	for i := range buf {
		buf[i] = '0'
	}

	for _, pos := range l.ones {
		buf[pos] = '1'
	}

	return string(buf)
}
