package rawdata

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/testfang/pkg/results"
)

// DejaGNU result tags. A line may carry a leading 'X' before its tag.
var resultTags = []struct {
	tag    string
	result results.Result
}{
	{"PASS: ", results.Passed},
	{"FAIL: ", results.Failed},
	{"UNSUPPORTED: ", results.NotExecuted},
}

// parseResultLine returns the test case name and outcome of one DejaGNU
// summary line. Lines without a known tag report ok == false.
func parseResultLine(line string) (name string, result results.Result, ok bool) {
	line = strings.TrimPrefix(line, "X")

	for _, t := range resultTags {
		if rest, found := strings.CutPrefix(line, t.tag); found {
			return rest, t.result, true
		}
	}

	return "", results.NotExecuted, false
}

// ResultsFromDir reads DejaGNU summaries laid out one revision per
// directory. Every file under root belongs to the revision named by its
// parent directory; each "PASS: name", "FAIL: name" or "UNSUPPORTED: name"
// line records the outcome of name in that revision. Later lines override
// earlier ones for the same test case.
func ResultsFromDir(root string) (*results.Matrix, error) {
	if err := checkDir(root); err != nil {
		return nil, err
	}

	m := results.New()

	err := walkFiles(root, func(path string) error {
		rev, revErr := parentRevision(path)
		if revErr != nil {
			return revErr
		}

		m.AddRevisionNumber(rev)

		return readLines(path, func(line string) error {
			if name, _, ok := parseResultLine(line); ok {
				m.AddTestcaseName(name)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	m.RefitSize()

	err = walkFiles(root, func(path string) error {
		rev, revErr := parentRevision(path)
		if revErr != nil {
			return revErr
		}

		return readLines(path, func(line string) error {
			name, result, ok := parseResultLine(line)
			if !ok {
				return nil
			}

			return m.SetResult(rev, name, result)
		})
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func parentRevision(path string) (uint32, error) {
	dir := filepath.Base(filepath.Dir(path))

	rev, err := strconv.ParseUint(dir, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: directory %s of %s is not a revision number", ErrInvalidName, dir, path)
	}

	return uint32(rev), nil
}
