package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Tree wraps a libgit2 tree.
type Tree struct {
	tree *git2go.Tree
	repo *Repository
}

// Hash returns the tree hash.
func (t *Tree) Hash() Hash {
	return HashFromOid(t.tree.Id())
}

// EntryCount returns the number of entries in the tree.
func (t *Tree) EntryCount() uint64 {
	return t.tree.EntryCount()
}

// EntryByIndex returns the tree entry at the given index, or nil.
func (t *Tree) EntryByIndex(i uint64) *TreeEntry {
	entry := t.tree.EntryByIndex(i)
	if entry == nil {
		return nil
	}

	return &TreeEntry{entry: entry}
}

// EntryByPath returns the tree entry at the given path.
func (t *Tree) EntryByPath(path string) (*TreeEntry, error) {
	entry, err := t.tree.EntryByPath(path)
	if err != nil {
		return nil, fmt.Errorf("entry by path %s: %w", path, err)
	}

	return &TreeEntry{entry: entry}, nil
}

// Paths returns the path of every blob in the tree, depth first.
func (t *Tree) Paths() ([]string, error) {
	var paths []string

	err := walkTree(t.repo, t, "", func(path string, _ *TreeEntry) error {
		paths = append(paths, path)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return paths, nil
}

// Free releases the tree resources.
func (t *Tree) Free() {
	if t.tree != nil {
		t.tree.Free()
		t.tree = nil
	}
}

// TreeEntry wraps a libgit2 tree entry.
type TreeEntry struct {
	entry *git2go.TreeEntry
}

// Name returns the entry name.
func (e *TreeEntry) Name() string {
	return e.entry.Name
}

// Hash returns the entry object hash.
func (e *TreeEntry) Hash() Hash {
	return HashFromOid(e.entry.Id)
}

// IsBlob reports whether the entry is a blob.
func (e *TreeEntry) IsBlob() bool {
	return e.entry.Type == git2go.ObjectBlob
}

// IsTree reports whether the entry is a subtree.
func (e *TreeEntry) IsTree() bool {
	return e.entry.Type == git2go.ObjectTree
}

// walkTree calls cb for every blob below tree.
func walkTree(repo *Repository, tree *Tree, prefix string, cb func(path string, entry *TreeEntry) error) error {
	for i := range tree.EntryCount() {
		entry := tree.EntryByIndex(i)
		if entry == nil {
			continue
		}

		path := entry.Name()
		if prefix != "" {
			path = prefix + "/" + path
		}

		if entry.IsBlob() {
			if err := cb(path, entry); err != nil {
				return err
			}

			continue
		}

		if !entry.IsTree() {
			continue
		}

		subtree, err := repo.LookupTree(entry.Hash())
		if err != nil {
			return err
		}

		err = walkTree(repo, subtree, path, cb)
		subtree.Free()

		if err != nil {
			return err
		}
	}

	return nil
}
