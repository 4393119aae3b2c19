// Package rawdata imports coverage, changesets and test results from plain
// text and JSON.
//
// The directory formats hold one file per revision (changesets) or per test
// case (coverage). Every line with exactly two comma separated fields names a
// code element in its first field; the second field is ignored. Empty fields
// are dropped before counting, so "a,,1" counts as two fields.
//
// Directory imports run in two passes: the first registers every name, the
// matrix is refit once, and the second sets the bits.
package rawdata

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotDirectory is returned when an import root is missing or not a
// directory.
var ErrNotDirectory = errors.New("rawdata: path does not exist or is not a directory")

// ErrInvalidName is returned when a file name cannot be turned into a key.
var ErrInvalidName = errors.New("rawdata: invalid file name")

// fieldCount is the number of fields a relation line carries.
const fieldCount = 2

// maxLineSize bounds a single input line.
const maxLineSize = 1 << 20

func checkDir(root string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	return nil
}

// walkFiles calls fn for every regular file under root in lexical order.
func walkFiles(root string, fn func(path string) error) error {
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		return fn(path)
	})
	if walkErr != nil {
		return fmt.Errorf("walk %s: %w", root, walkErr)
	}

	return nil
}

// readNames calls fn with the first field of every two-field line of path.
func readNames(path string, fn func(name string) error) error {
	return readLines(path, func(line string) error {
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ','
		})

		if len(fields) != fieldCount {
			return nil
		}

		return fn(fields[0])
	})
}

// readLines calls fn with every line of path, carriage returns trimmed.
func readLines(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	for scanner.Scan() {
		if fnErr := fn(strings.TrimRight(scanner.Text(), "\r")); fnErr != nil {
			return fmt.Errorf("%s: %w", path, fnErr)
		}
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("read %s: %w", path, scanErr)
	}

	return nil
}
