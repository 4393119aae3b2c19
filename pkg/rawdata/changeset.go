package rawdata

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/Sumatoshi-tech/testfang/pkg/changeset"
)

// ChangesetFromDir reads a one-revision-per-file directory tree. Each file is
// named by its decimal revision number; each of its relation lines marks a
// code element as changed in that revision.
func ChangesetFromDir(root string) (*changeset.Changeset, error) {
	if err := checkDir(root); err != nil {
		return nil, err
	}

	cs := changeset.New()

	err := walkFiles(root, func(path string) error {
		return readNames(path, func(name string) error {
			cs.AddCodeElementName(name)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	cs.RefitSize()

	err = walkFiles(root, func(path string) error {
		rev, parseErr := strconv.ParseUint(filepath.Base(path), 10, 32)
		if parseErr != nil {
			return fmt.Errorf("%w: %s is not a revision number", ErrInvalidName, path)
		}

		cs.AddRevision(uint32(rev))

		return readNames(path, func(name string) error {
			return cs.SetChange(uint32(rev), name, true)
		})
	})
	if err != nil {
		return nil, err
	}

	return cs, nil
}
