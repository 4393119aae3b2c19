// Package checkpoint saves the selected prefix of a prioritization run so it
// can be resumed later.
//
// Each checkpoint lives in its own directory named by id and holds
// checkpoint.json with the run metadata plus a selection file written with a
// persist codec.
package checkpoint

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/testfang/pkg/persist"
)

// MetadataVersion is the current checkpoint metadata format version.
const MetadataVersion = 1

// Sentinel errors for checkpoint validation.
var (
	ErrNotFound          = errors.New("checkpoint not found")
	ErrAlgorithmMismatch = errors.New("algorithm mismatch")
	ErrCoverageMismatch  = errors.New("coverage file changed since checkpoint")
	ErrVersionMismatch   = errors.New("unsupported checkpoint version")
)

const (
	metadataFile      = "checkpoint.json"
	selectionBasename = "selection"
	dirPerm           = 0o750
	filePerm          = 0o600
)

// DefaultDir returns the default checkpoint directory (~/.testfang/checkpoints).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".testfang", "checkpoints")
}

// Metadata describes a saved run.
type Metadata struct {
	Version        int    `json:"version"`
	ID             string `json:"id"`
	CreatedAt      string `json:"created_at"`
	Algorithm      string `json:"algorithm"`
	CoveragePath   string `json:"coverage_path"`
	CoverageDigest string `json:"coverage_digest"`
	Seed           uint64 `json:"seed"`
	Selected       int    `json:"selected"`
	Codec          string `json:"codec"`
}

// Selection is the persisted ready prefix.
type Selection struct {
	Testcases []int `json:"testcases" yaml:"testcases"`
}

// Manager stores checkpoints below BaseDir.
type Manager struct {
	BaseDir string
	Codec   string
}

// NewManager creates a manager writing selections with the named codec.
func NewManager(baseDir, codec string) *Manager {
	return &Manager{BaseDir: baseDir, Codec: codec}
}

// Dir returns the directory of checkpoint id.
func (m *Manager) Dir(id string) string {
	return filepath.Join(m.BaseDir, id)
}

// Exists reports whether checkpoint id has metadata on disk.
func (m *Manager) Exists(id string) bool {
	_, err := os.Stat(filepath.Join(m.Dir(id), metadataFile))

	return err == nil
}

// Save writes a new checkpoint and returns its metadata. The coverage file is
// fingerprinted so a resume against different data is refused.
func (m *Manager) Save(algorithm, coveragePath string, seed uint64, selected []int) (*Metadata, error) {
	codec, err := persist.CodecByName(m.Codec)
	if err != nil {
		return nil, err
	}

	digest, err := FileDigest(coveragePath)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Version:        MetadataVersion,
		ID:             uuid.New().String(),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		Algorithm:      algorithm,
		CoveragePath:   coveragePath,
		CoverageDigest: digest,
		Seed:           seed,
		Selected:       len(selected),
		Codec:          codec.Extension()[1:],
	}

	dir := m.Dir(meta.ID)

	if err = os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	sel := persist.NewPersister[Selection](selectionBasename, codec)
	if err = sel.Save(dir, &Selection{Testcases: slices.Clone(selected)}); err != nil {
		return nil, fmt.Errorf("save selection: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	if err = os.WriteFile(filepath.Join(dir, metadataFile), data, filePerm); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	return meta, nil
}

// LoadMetadata reads the metadata of checkpoint id.
func (m *Manager) LoadMetadata(id string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(m.Dir(id), metadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata

	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	if meta.Version != MetadataVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersionMismatch, meta.Version)
	}

	return &meta, nil
}

// Load reads checkpoint id and its selected prefix.
func (m *Manager) Load(id string) (*Metadata, []int, error) {
	meta, err := m.LoadMetadata(id)
	if err != nil {
		return nil, nil, err
	}

	codec, err := persist.CodecByName(meta.Codec)
	if err != nil {
		return nil, nil, err
	}

	sel, err := persist.NewPersister[Selection](selectionBasename, codec).Load(m.Dir(id))
	if err != nil {
		return nil, nil, fmt.Errorf("load selection: %w", err)
	}

	return meta, sel.Testcases, nil
}

// Validate checks that checkpoint id was taken with algorithm over the
// current contents of coveragePath.
func (m *Manager) Validate(id, algorithm, coveragePath string) error {
	meta, err := m.LoadMetadata(id)
	if err != nil {
		return err
	}

	if meta.Algorithm != algorithm {
		return fmt.Errorf("%w: checkpoint has %q, got %q", ErrAlgorithmMismatch, meta.Algorithm, algorithm)
	}

	digest, err := FileDigest(coveragePath)
	if err != nil {
		return err
	}

	if digest != meta.CoverageDigest {
		return fmt.Errorf("%w: %s", ErrCoverageMismatch, coveragePath)
	}

	return nil
}

// List returns the metadata of every readable checkpoint, newest first.
func (m *Manager) List() ([]*Metadata, error) {
	entries, err := os.ReadDir(m.BaseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}

	var out []*Metadata

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, loadErr := m.LoadMetadata(entry.Name())
		if loadErr != nil {
			continue
		}

		out = append(out, meta)
	}

	slices.SortFunc(out, func(a, b *Metadata) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	return out, nil
}

// Remove deletes checkpoint id. Removing a missing checkpoint is a no-op.
func (m *Manager) Remove(id string) error {
	if err := os.RemoveAll(m.Dir(id)); err != nil {
		return fmt.Errorf("remove checkpoint: %w", err)
	}

	return nil
}

// FileDigest returns the hex SHA-256 of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()

	if _, err = io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
