package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ChangeAction represents the type of change in a diff.
type ChangeAction int

const (
	// Insert indicates a new file was added.
	Insert ChangeAction = iota
	// Delete indicates a file was removed.
	Delete
	// Modify indicates a file was modified or renamed.
	Modify
)

// String returns the action name.
func (a ChangeAction) String() string {
	switch a {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Modify:
		return "modify"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Change represents a single file change between two trees.
type Change struct {
	Action ChangeAction
	From   ChangeEntry
	To     ChangeEntry
}

// Path returns the path the change is recorded under: the new path, or
// the old one for deletions.
func (c *Change) Path() string {
	if c.Action == Delete {
		return c.From.Name
	}

	return c.To.Name
}

// ChangeEntry represents one side of a change (old or new file).
type ChangeEntry struct {
	Name string
	Hash Hash
	Size int64
}

// Changes is a collection of Change objects.
type Changes []*Change

// Paths returns the path of every change, in diff order.
func (cs Changes) Paths() []string {
	paths := make([]string, 0, len(cs))
	for _, c := range cs {
		paths = append(paths, c.Path())
	}

	return paths
}

// TreeDiff computes the changes between two trees. Equal trees yield no
// changes without running a diff.
func TreeDiff(repo *Repository, oldTree, newTree *Tree) (Changes, error) {
	if oldTree != nil && newTree != nil && oldTree.Hash() == newTree.Hash() {
		return Changes{}, nil
	}

	diff, err := repo.diffTreeToTree(oldTree, newTree)
	if err != nil {
		return nil, err
	}
	defer diff.Free()

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, fmt.Errorf("get num deltas: %w", err)
	}

	changes := make(Changes, 0, numDeltas)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			return nil, fmt.Errorf("get delta %d: %w", i, deltaErr)
		}

		from := ChangeEntry{Name: delta.OldFile.Path, Hash: HashFromOid(delta.OldFile.Oid), Size: int64(delta.OldFile.Size)}
		to := ChangeEntry{Name: delta.NewFile.Path, Hash: HashFromOid(delta.NewFile.Oid), Size: int64(delta.NewFile.Size)}

		switch delta.Status {
		case git2go.DeltaAdded:
			changes = append(changes, &Change{Action: Insert, To: to})
		case git2go.DeltaDeleted:
			changes = append(changes, &Change{Action: Delete, From: from})
		case git2go.DeltaModified, git2go.DeltaRenamed, git2go.DeltaCopied, git2go.DeltaTypeChange:
			changes = append(changes, &Change{Action: Modify, From: from, To: to})
		case git2go.DeltaUnmodified, git2go.DeltaIgnored, git2go.DeltaUntracked,
			git2go.DeltaUnreadable, git2go.DeltaConflicted:
		}
	}

	return changes, nil
}

// InitialTreeChanges lists every file of a root commit's tree as an
// insertion.
func InitialTreeChanges(repo *Repository, tree *Tree) (Changes, error) {
	if tree == nil {
		return nil, nil
	}

	changes := make(Changes, 0)

	err := walkTree(repo, tree, "", func(path string, entry *TreeEntry) error {
		changes = append(changes, &Change{
			Action: Insert,
			To:     ChangeEntry{Name: path, Hash: entry.Hash()},
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return changes, nil
}
