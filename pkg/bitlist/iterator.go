package bitlist

// Iterator walks the positions of a List by value. Copies advance
// independently; the list must not be mutated while an iterator is in use.
type Iterator struct {
	ones []int
	size int
	pos  int
	next int // Index into ones of the first true position >= pos.
}

// Next returns the value at the cursor and advances. The second result is
// false once the cursor has passed the end.
func (it *Iterator) Next() (bool, bool) {
	if it.pos >= it.size {
		return false, false
	}

	value := it.next < len(it.ones) && it.ones[it.next] == it.pos
	if value {
		it.next++
	}

	it.pos++

	return value, true
}

// Pos returns the position the next call to Next will read.
func (it *Iterator) Pos() int { return it.pos }

// Done reports whether the cursor has passed the end.
func (it *Iterator) Done() bool { return it.pos >= it.size }
