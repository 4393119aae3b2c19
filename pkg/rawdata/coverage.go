package rawdata

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/testfang/pkg/coverage"
)

// ErrInvalidCoverage is returned when a JSON document fails schema validation.
var ErrInvalidCoverage = errors.New("rawdata: invalid coverage document")

//go:embed coverage-schema.json
var coverageSchema []byte

// Outcome markers stripped from test file names.
var outcomeMarkers = []string{"PASS: ", "FAIL: "}

// TestcaseName derives a test case name from a path relative to the import
// root: the first outcome marker and the extension are removed.
func TestcaseName(rel string) string {
	name := filepath.ToSlash(rel)

	for _, marker := range outcomeMarkers {
		if i := strings.Index(name, marker); i >= 0 {
			name = name[:i] + name[i+len(marker):]

			break
		}
	}

	if i := strings.LastIndexByte(name, '.'); i > strings.LastIndexByte(name, '/') {
		name = name[:i]
	}

	return name
}

// CoverageFromDir reads a one-test-per-file directory tree. The test case
// name comes from TestcaseName; each relation line marks a code element as
// covered by that test.
func CoverageFromDir(root string) (*coverage.Matrix, error) {
	if err := checkDir(root); err != nil {
		return nil, err
	}

	m := coverage.New()

	testcaseOf := func(path string) (string, error) {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidName, path, err)
		}

		return TestcaseName(rel), nil
	}

	err := walkFiles(root, func(path string) error {
		tc, nameErr := testcaseOf(path)
		if nameErr != nil {
			return nameErr
		}

		m.AddTestcaseName(tc)

		return readNames(path, func(name string) error {
			m.AddCodeElementName(name)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	m.RefitSize()

	err = walkFiles(root, func(path string) error {
		tc, nameErr := testcaseOf(path)
		if nameErr != nil {
			return nameErr
		}

		return readNames(path, func(name string) error {
			return m.SetRelation(tc, name, true)
		})
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Document is the JSON coverage format.
type Document struct {
	CodeElements []string   `json:"code_elements,omitempty"`
	Testcases    []Testcase `json:"testcases"`
}

// Testcase is one test of a Document.
type Testcase struct {
	Name    string   `json:"name"`
	Outcome string   `json:"outcome,omitempty"`
	Covered []string `json:"covered"`
}

// CoverageFromJSON validates a JSON coverage document against the embedded
// schema and builds the matrix it describes.
func CoverageFromJSON(r io.Reader) (*coverage.Matrix, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read coverage document: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(coverageSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCoverage, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidCoverage, strings.Join(msgs, "; "))
	}

	var doc Document

	if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCoverage, jsonErr)
	}

	m := coverage.New()

	for _, name := range doc.CodeElements {
		m.AddCodeElementName(name)
	}

	for _, tc := range doc.Testcases {
		m.AddTestcaseName(tc.Name)

		for _, name := range tc.Covered {
			m.AddCodeElementName(name)
		}
	}

	m.RefitSize()

	for _, tc := range doc.Testcases {
		for _, name := range tc.Covered {
			if relErr := m.SetRelation(tc.Name, name, true); relErr != nil {
				return nil, relErr
			}
		}
	}

	return m, nil
}
