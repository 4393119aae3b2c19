package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/testfang/internal/run"
	"github.com/Sumatoshi-tech/testfang/pkg/changeset"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritization"
)

// Tool name constants.
const (
	ToolNamePrioritize = "testfang_prioritize"
	ToolNameChangeset  = "testfang_changeset"
	ToolNameAlgorithms = "testfang_algorithms"
	ToolNameReduce     = "testfang_reduce"
)

// Tool descriptions.
const (
	prioritizeToolDescription = "Order the test cases of a SoDA coverage file so the most useful run first. " +
		"Accepts a coverage path, an algorithm name and an optional size, seed, and checkpoint to resume."

	changesetToolDescription = "Summarize a SoDA changeset file: revisions with their change counts, " +
		"or the code elements changed in one revision."

	algorithmsToolDescription = "List the available prioritization algorithms."

	reduceToolDescription = "Write reduced test suites of a SoDA coverage file: doubling iterations, fixed sizes, " +
		"and the shortest prefix keeping full coverage, for each requested prioritization algorithm."
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyPath indicates a required path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrPathNotAbsolute indicates a path parameter is relative.
	ErrPathNotAbsolute = errors.New("path must be absolute")

	errToolFailed = errors.New("tool failed")
)

// PrioritizeInput is the input schema for the testfang_prioritize tool.
type PrioritizeInput struct {
	Algorithm     string  `json:"algorithm,omitempty"      jsonschema:"algorithm name (default: duplation)"`
	ChangesetPath string  `json:"changeset_path,omitempty" jsonschema:"optional absolute path to a changeset file used to flag affected tests"`
	Checkpoint    bool    `json:"checkpoint,omitempty"     jsonschema:"save the selection so it can be resumed"`
	CoveragePath  string  `json:"coverage_path"            jsonschema:"absolute path to a SoDA coverage file"`
	Record        bool    `json:"record,omitempty"         jsonschema:"store the run in the history database"`
	ResultsPath   string  `json:"results_path,omitempty"   jsonschema:"optional absolute path to a results file used to flag failing tests"`
	ResumeID      string  `json:"resume_id,omitempty"      jsonschema:"checkpoint id to resume from"`
	Revision      *uint32 `json:"revision,omitempty"       jsonschema:"changeset and results revision to compare against (default: newest)"`
	Seed          uint64  `json:"seed,omitempty"           jsonschema:"seed for random algorithms (default: time based)"`
	Size          int     `json:"size,omitempty"           jsonschema:"number of test cases to select (default: all)"`
}

// ChangesetInput is the input schema for the testfang_changeset tool.
type ChangesetInput struct {
	Path     string  `json:"path"               jsonschema:"absolute path to a SoDA changeset file"`
	Revision *uint32 `json:"revision,omitempty" jsonschema:"list the code elements changed in this revision"`
}

// ReduceInput is the input schema for the testfang_reduce tool.
type ReduceInput struct {
	Algorithms   []string `json:"algorithms,omitempty" jsonschema:"algorithm names (default: all)"`
	CoveragePath string   `json:"coverage_path"        jsonschema:"absolute path to a SoDA coverage file"`
	Iterations   int      `json:"iterations,omitempty" jsonschema:"number of doubling iterations (default: until the whole suite)"`
	OutputDir    string   `json:"output_dir"           jsonschema:"absolute directory receiving the reduced coverage files"`
	Program      string   `json:"program,omitempty"    jsonschema:"file name prefix (default: coverage file name)"`
	Seed         uint64   `json:"seed,omitempty"       jsonschema:"seed for random algorithms (default: time based)"`
	Sizes        []int    `json:"sizes,omitempty"      jsonschema:"fixed reduced suite sizes"`
}

// AlgorithmsInput is the empty input of the testfang_algorithms tool.
type AlgorithmsInput struct{}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// RevisionSummary is one row of a changeset summary.
type RevisionSummary struct {
	Revision uint32 `json:"revision"`
	Changed  int    `json:"changed"`
}

// ChangesetSummary is the testfang_changeset result.
type ChangesetSummary struct {
	CodeElements int               `json:"code_elements"`
	Revisions    []RevisionSummary `json:"revisions,omitempty"`
	Revision     *uint32           `json:"revision,omitempty"`
	Changed      []string          `json:"changed,omitempty"`
}

func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}, ToolOutput{}, nil
}

func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, ToolOutput{Data: value}, nil
}

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s", ErrPathNotAbsolute, path)
	}

	return nil
}

func (s *Server) handlePrioritize(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input PrioritizeInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := validatePath(input.CoveragePath); err != nil {
		return errorResult(err)
	}

	for _, optional := range []string{input.ChangesetPath, input.ResultsPath} {
		if optional == "" {
			continue
		}

		if err := validatePath(optional); err != nil {
			return errorResult(err)
		}
	}

	algorithm := input.Algorithm
	if algorithm == "" {
		algorithm = prioritization.NewDuplation().Name()
	}

	res, err := s.runner.Prioritize(ctx, run.Request{
		CoveragePath:  input.CoveragePath,
		Algorithm:     algorithm,
		Size:          input.Size,
		Seed:          input.Seed,
		ResumeID:      input.ResumeID,
		Checkpoint:    input.Checkpoint,
		Record:        input.Record,
		ChangesetPath: input.ChangesetPath,
		Revision:      input.Revision,
		ResultsPath:   input.ResultsPath,
	})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(res)
}

func (s *Server) handleReduce(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ReduceInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	for _, path := range []string{input.CoveragePath, input.OutputDir} {
		if err := validatePath(path); err != nil {
			return errorResult(err)
		}
	}

	res, err := s.runner.Reduce(ctx, run.ReduceRequest{
		CoveragePath: input.CoveragePath,
		Algorithms:   input.Algorithms,
		Iterations:   input.Iterations,
		Sizes:        input.Sizes,
		Seed:         input.Seed,
		OutputDir:    input.OutputDir,
		Program:      input.Program,
	})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(res)
}

func handleChangeset(
	_ context.Context, _ *mcpsdk.CallToolRequest, input ChangesetInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := validatePath(input.Path); err != nil {
		return errorResult(err)
	}

	cs, err := changeset.Open(input.Path)
	if err != nil {
		return errorResult(err)
	}

	summary := ChangesetSummary{CodeElements: cs.CodeElements().Len()}

	if input.Revision != nil {
		names, namesErr := cs.CodeElementNames(*input.Revision)
		if namesErr != nil {
			return errorResult(namesErr)
		}

		summary.Revision = input.Revision
		summary.Changed = names

		return jsonResult(summary)
	}

	for _, rev := range cs.Revisions() {
		n, countErr := cs.ChangeCount(rev)
		if countErr != nil {
			return errorResult(countErr)
		}

		summary.Revisions = append(summary.Revisions, RevisionSummary{Revision: rev, Changed: n})
	}

	return jsonResult(summary)
}

func (s *Server) handleAlgorithms(
	_ context.Context, _ *mcpsdk.CallToolRequest, _ AlgorithmsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return jsonResult(s.registry.All())
}
