// Package changeset records which code elements changed in which revision.
//
// A Changeset pairs an identifier table of code element names with a
// revision-indexed bit matrix: bit (rev, id) is set when the element with that
// id was modified in that revision. Registration of code elements is global,
// so every revision row shares the same columns.
package changeset

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/testfang/pkg/bitlist"
	"github.com/Sumatoshi-tech/testfang/pkg/idmanager"
	"github.com/Sumatoshi-tech/testfang/pkg/revision"
)

var (
	// ErrNotFound is returned when a revision or code element is unknown.
	ErrNotFound = errors.New("changeset: not found")

	// ErrUnknownCodeElement is returned by strict mutations that name a code
	// element which was never registered.
	ErrUnknownCodeElement = errors.New("changeset: unknown code element")

	// ErrInconsistentWidth is returned by Save when rows differ from the number
	// of registered code elements. Call RefitSize first.
	ErrInconsistentWidth = errors.New("changeset: inconsistent row width")
)

// Changeset is a revision by code element change matrix. It is not safe for
// concurrent use.
type Changeset struct {
	codeElements *idmanager.Table
	changes      *revision.Matrix
}

// New returns an empty Changeset with its own tables.
func New() *Changeset {
	return &Changeset{
		codeElements: idmanager.New(),
		changes:      revision.NewMatrix(),
	}
}

// NewWith returns a Changeset over caller-supplied tables. The caller keeps
// using them; mutations through the Changeset are visible to other holders.
func NewWith(codeElements *idmanager.Table, changes *revision.Matrix) *Changeset {
	return &Changeset{codeElements: codeElements, changes: changes}
}

// CodeElements returns the code element table.
func (c *Changeset) CodeElements() *idmanager.Table { return c.codeElements }

// Matrix returns the underlying revision matrix.
func (c *Changeset) Matrix() *revision.Matrix { return c.changes }

// Revisions returns every revision number in ascending order.
func (c *Changeset) Revisions() []uint32 { return c.changes.Revisions() }

// HasRevision reports whether rev is registered.
func (c *Changeset) HasRevision(rev uint32) bool { return c.changes.Has(rev) }

// lookup resolves rev and name to their row and column.
func (c *Changeset) lookup(rev uint32, name string) (*bitlist.List, int, error) {
	row, err := c.changes.Row(rev)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: revision %d", ErrNotFound, rev)
	}

	id, ok := c.codeElements.ID(name)
	if !ok {
		return nil, 0, fmt.Errorf("%w: code element %q", ErrNotFound, name)
	}

	return row, id, nil
}

// widen pads a row that predates the registration of column id.
func (c *Changeset) widen(row *bitlist.List, id int) {
	if id >= row.Len() {
		row.Resize(c.codeElements.Len())
	}
}

// IsChanged reports whether name changed in rev.
func (c *Changeset) IsChanged(rev uint32, name string) (bool, error) {
	row, id, err := c.lookup(rev, name)
	if err != nil {
		return false, err
	}

	return row.Get(id), nil
}

// Toggle flips the change bit of name in rev.
func (c *Changeset) Toggle(rev uint32, name string) error {
	row, id, err := c.lookup(rev, name)
	if err != nil {
		return err
	}

	c.widen(row, id)

	return row.Toggle(id)
}

// SetChange stores value for name in rev. The code element must be
// registered and the revision must exist.
func (c *Changeset) SetChange(rev uint32, name string, value bool) error {
	if !c.codeElements.Contains(name) {
		return fmt.Errorf("%w: %q", ErrUnknownCodeElement, name)
	}

	row, id, err := c.lookup(rev, name)
	if err != nil {
		return err
	}

	c.widen(row, id)

	return row.Set(id, value)
}

// AddOrSetChange stores value for name in rev, registering either key first
// when it is missing.
func (c *Changeset) AddOrSetChange(rev uint32, name string, value bool) {
	c.AddRevision(rev)
	c.AddCodeElement(name)

	row, id, err := c.lookup(rev, name)
	if err != nil {
		return
	}

	c.widen(row, id)
	_ = row.Set(id, value)
}

// AddRevision registers rev with an all-false row. Known revisions are left
// untouched.
func (c *Changeset) AddRevision(rev uint32) {
	c.changes.Add(rev, c.codeElements.Len())
}

// AddRevisions registers every revision in revs.
func (c *Changeset) AddRevisions(revs ...uint32) {
	for _, rev := range revs {
		c.AddRevision(rev)
	}
}

// AddCodeElement registers name and appends a false column to every row.
// Known names are left untouched.
func (c *Changeset) AddCodeElement(name string) {
	if c.codeElements.Contains(name) {
		return
	}

	c.codeElements.Add(name)
	c.changes.AddColumn()
}

// AddCodeElements registers every name in names.
func (c *Changeset) AddCodeElements(names ...string) {
	for _, name := range names {
		c.AddCodeElement(name)
	}
}

// AddCodeElementName registers name without widening the rows. Bulk
// importers register every name first and then call RefitSize once.
func (c *Changeset) AddCodeElementName(name string) {
	c.codeElements.Add(name)
}

// RemoveRevision drops rev. Unknown revisions are ignored.
func (c *Changeset) RemoveRevision(rev uint32) {
	c.changes.Remove(rev)
}

// RemoveCodeElement drops name and erases its column from every row. Unknown
// names are ignored.
func (c *Changeset) RemoveCodeElement(name string) {
	id, ok := c.codeElements.Remove(name)
	if !ok {
		return
	}

	c.changes.RemoveColumnAt(id)
}

// RefitSize pads every row to the number of registered code elements.
func (c *Changeset) RefitSize() {
	c.changes.RefitSize(c.codeElements.Len())
}

// RevisionsOf returns the revisions in which name changed, ascending.
func (c *Changeset) RevisionsOf(name string) ([]uint32, error) {
	id, ok := c.codeElements.ID(name)
	if !ok {
		return nil, fmt.Errorf("%w: code element %q", ErrNotFound, name)
	}

	var revs []uint32

	c.changes.Each(func(rev uint32, row *bitlist.List) {
		if row.Get(id) {
			revs = append(revs, rev)
		}
	})

	return revs, nil
}

// CodeElementNames returns the names that changed in rev, ordered by id.
func (c *Changeset) CodeElementNames(rev uint32) ([]string, error) {
	row, err := c.changes.Row(rev)
	if err != nil {
		return nil, fmt.Errorf("%w: revision %d", ErrNotFound, rev)
	}

	names := make([]string, 0, row.Count())

	for id := range row.Ones() {
		if name, ok := c.codeElements.Name(id); ok {
			names = append(names, name)
		}
	}

	return names, nil
}

// ChangeCount returns the number of code elements changed in rev.
func (c *Changeset) ChangeCount(rev uint32) (int, error) {
	row, err := c.changes.Row(rev)
	if err != nil {
		return 0, fmt.Errorf("%w: revision %d", ErrNotFound, rev)
	}

	return row.Count(), nil
}

// checkWidths verifies that every row spans exactly the registered columns.
func (c *Changeset) checkWidths() error {
	want := c.codeElements.Len()

	for _, width := range c.changes.Widths() {
		if width != want {
			return fmt.Errorf("%w: row of %d columns, %d code elements", ErrInconsistentWidth, width, want)
		}
	}

	return nil
}
