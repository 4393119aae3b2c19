// Package persist provides codec-based file persistence for arbitrary state types.
package persist

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCodec is returned by CodecByName for unsupported names.
var ErrUnknownCodec = errors.New("persist: unknown codec")

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	gobExtension  = ".gob"
	yamlExtension = ".yaml"
)

// Default indentation for pretty-printed output.
const (
	defaultIndent     = "  "
	defaultYAMLIndent = 2
)

const filePerm = 0o600

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec (e.g., ".json", ".gob").
	Extension() string
}

// CodecByName returns the codec registered under name: json, gob or yaml.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "json", "":
		return NewJSONCodec(), nil
	case "gob":
		return NewGobCodec(), nil
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	if err := encoder.Encode(state); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	if err := json.NewDecoder(r).Decode(state); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for JSON files.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// GobCodec implements Codec using gob encoding.
type GobCodec struct{}

// NewGobCodec creates a gob codec.
func NewGobCodec() *GobCodec {
	return &GobCodec{}
}

// Encode implements Codec.Encode using gob encoding.
func (c *GobCodec) Encode(w io.Writer, state any) error {
	if err := gob.NewEncoder(w).Encode(state); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using gob decoding.
func (c *GobCodec) Decode(r io.Reader, state any) error {
	if err := gob.NewDecoder(r).Decode(state); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for gob files.
func (c *GobCodec) Extension() string {
	return gobExtension
}

// YAMLCodec implements Codec using YAML encoding.
type YAMLCodec struct {
	Indent int
}

// NewYAMLCodec creates a YAML codec with a 2-space indent.
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{Indent: defaultYAMLIndent}
}

// Encode implements Codec.Encode using YAML encoding.
func (c *YAMLCodec) Encode(w io.Writer, state any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(c.Indent)

	if err := encoder.Encode(state); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using YAML decoding.
func (c *YAMLCodec) Decode(r io.Reader, state any) error {
	if err := yaml.NewDecoder(r).Decode(state); err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for YAML files.
func (c *YAMLCodec) Extension() string {
	return yamlExtension
}

// SaveState saves the given state to dir/basename plus the codec's extension.
// The file is written to a temporary name first and renamed into place.
func SaveState(dir, basename string, codec Codec, state any) error {
	path := filepath.Join(dir, basename+codec.Extension())

	tmp, err := os.CreateTemp(dir, basename+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	tmpPath := tmp.Name()

	encodeErr := codec.Encode(tmp, state)
	closeErr := tmp.Close()

	if err = errors.Join(encodeErr, closeErr); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("encode state: %w", err)
	}

	if err = os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("chmod state file: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// LoadState loads state from dir/basename plus the codec's extension.
// The state parameter must be a pointer to the target value.
func LoadState(dir, basename string, codec Codec, state any) error {
	file, err := os.Open(filepath.Join(dir, basename+codec.Extension()))
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	if err = codec.Decode(file, state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}
