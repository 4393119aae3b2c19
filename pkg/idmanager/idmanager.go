// Package idmanager provides the bidirectional name/id table that labels the
// rows and columns of coverage and changeset matrices.
//
// Ids are dense: the table always holds ids 0..Len()-1, so an id doubles as a
// matrix column index. Removing a name shifts every later id down by one, the
// same way erasing a column shifts the columns after it.
package idmanager

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
	"github.com/Sumatoshi-tech/testfang/pkg/sodaio"
)

// Table maps names to dense integer ids. It is not safe for concurrent use.
type Table struct {
	nameToID map[string]int
	idToName []string
}

// New creates an empty Table.
func New() *Table {
	return &Table{
		nameToID: make(map[string]int),
	}
}

// Add registers name and returns its id. Registering a known name returns the
// existing id.
func (t *Table) Add(name string) int {
	if id, ok := t.nameToID[name]; ok {
		return id
	}

	id := len(t.idToName)
	t.idToName = append(t.idToName, name)
	t.nameToID[name] = id

	return id
}

// ID returns the id of name.
func (t *Table) ID(name string) (int, bool) {
	id, ok := t.nameToID[name]

	return id, ok
}

// Name returns the name registered under id.
func (t *Table) Name(id int) (string, bool) {
	if id < 0 || id >= len(t.idToName) {
		return "", false
	}

	return t.idToName[id], true
}

// Contains reports whether name is registered.
func (t *Table) Contains(name string) bool {
	_, ok := t.nameToID[name]

	return ok
}

// Len returns the number of registered names.
func (t *Table) Len() int { return len(t.idToName) }

// IDs returns every id in ascending order.
func (t *Table) IDs() []int {
	ids := make([]int, len(t.idToName))
	for i := range ids {
		ids[i] = i
	}

	return ids
}

// Names returns every name ordered by id.
func (t *Table) Names() []string {
	return slices.Clone(t.idToName)
}

// Remove deregisters name and returns the id it held. Ids above it shift down
// by one. Removing an unknown name is a no-op.
func (t *Table) Remove(name string) (int, bool) {
	id, ok := t.nameToID[name]
	if !ok {
		return 0, false
	}

	delete(t.nameToID, name)
	t.idToName = slices.Delete(t.idToName, id, id+1)

	for i := id; i < len(t.idToName); i++ {
		t.nameToID[t.idToName[i]] = i
	}

	return id, true
}

// Clone returns an independent copy.
func (t *Table) Clone() *Table {
	c := &Table{
		nameToID: make(map[string]int, len(t.nameToID)),
		idToName: slices.Clone(t.idToName),
	}

	for name, id := range t.nameToID {
		c.nameToID[name] = id
	}

	return c
}

// Encode returns the table payload: [count u64] then [id u64][name NUL] per
// entry in id order.
func (t *Table) Encode() []byte {
	size := 8
	for _, name := range t.idToName {
		size += 8 + len(name) + 1
	}

	enc := sodaio.NewEncoder(size)
	enc.Uint64(safeconv.MustIntToUint64(len(t.idToName)))

	for id, name := range t.idToName {
		enc.Uint64(safeconv.MustIntToUint64(id))
		enc.CString(name)
	}

	return enc.Bytes()
}

// Save writes the table as one chunk tagged id (TCLIST, PRLIST, REVLIST...).
func (t *Table) Save(w *sodaio.Writer, id sodaio.ChunkID) error {
	if err := w.WriteChunk(id, t.Encode()); err != nil {
		return fmt.Errorf("save id table: %w", err)
	}

	return nil
}

// Load replaces the table contents with the current chunk of r.
func (t *Table) Load(r *sodaio.Reader) error {
	dec, err := r.Decoder()
	if err != nil {
		return fmt.Errorf("load id table: %w", err)
	}

	return t.Decode(dec)
}

// Decode replaces the table contents with a payload produced by Encode. Ids
// must form the dense range 0..count-1, in any order.
func (t *Table) Decode(dec *sodaio.Decoder) error {
	count, err := safeconv.Uint64ToInt(dec.Uint64())
	if err != nil || count > dec.Remaining() {
		return fmt.Errorf("%w: id table count out of range", sodaio.ErrCorruptFormat)
	}

	names := make([]string, count)
	seen := make([]bool, count)

	for range count {
		rawID := dec.Uint64()
		name := dec.CString()

		if decErr := dec.Err(); decErr != nil {
			return decErr
		}

		id, convErr := safeconv.Uint64ToInt(rawID)
		if convErr != nil || id >= count || seen[id] {
			return fmt.Errorf("%w: id %d is not dense in a table of %d", sodaio.ErrCorruptFormat, rawID, count)
		}

		seen[id] = true
		names[id] = name
	}

	lookup := make(map[string]int, count)
	for id, name := range names {
		if _, dup := lookup[name]; dup {
			return fmt.Errorf("%w: duplicate name %q", sodaio.ErrCorruptFormat, name)
		}

		lookup[name] = id
	}

	t.idToName = names
	t.nameToID = lookup

	return nil
}
