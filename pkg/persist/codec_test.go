package persist

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testState is a struct for round-trip codec testing.
type testState struct {
	Name     string `json:"name" yaml:"name"`
	Selected []int  `json:"selected" yaml:"selected"`
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	original := testState{Name: "duplation", Selected: []int{3, 1, 2}}

	for _, name := range []string{"json", "gob", "yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			codec, err := CodecByName(name)
			require.NoError(t, err)
			assert.Equal(t, "."+name, codec.Extension())

			var buf bytes.Buffer

			require.NoError(t, codec.Encode(&buf, original))

			var decoded testState

			require.NoError(t, codec.Decode(&buf, &decoded))
			assert.Equal(t, original, decoded)
		})
	}
}

func TestCodecByName(t *testing.T) {
	t.Parallel()

	codec, err := CodecByName("")
	require.NoError(t, err)
	assert.IsType(t, &JSONCodec{}, codec)

	codec, err = CodecByName("yml")
	require.NoError(t, err)
	assert.IsType(t, &YAMLCodec{}, codec)

	_, err = CodecByName("xml")
	require.ErrorIs(t, err, ErrUnknownCodec)
}

func TestJSONCodec_Indent(t *testing.T) {
	t.Parallel()

	var pretty, compact bytes.Buffer

	require.NoError(t, NewJSONCodec().Encode(&pretty, testState{Name: "a"}))
	require.NoError(t, (&JSONCodec{}).Encode(&compact, testState{Name: "a"}))

	assert.Contains(t, pretty.String(), "\n  \"name\"")
	assert.Equal(t, "{\"name\":\"a\",\"selected\":null}\n", compact.String())
}

func TestCodecs_Errors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.Error(t, NewJSONCodec().Encode(&buf, math.Inf(1)))
	require.Error(t, NewGobCodec().Encode(&buf, func() {}))

	var s testState

	require.Error(t, NewJSONCodec().Decode(strings.NewReader("{"), &s))
	require.Error(t, NewGobCodec().Decode(strings.NewReader("garbage"), &s))
	require.Error(t, NewYAMLCodec().Decode(strings.NewReader("name: [unclosed"), &s))
}

func TestSaveLoadState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := NewYAMLCodec()

	require.NoError(t, SaveState(dir, "state", codec, testState{Name: "x", Selected: []int{1}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.yaml", entries[0].Name())

	var loaded testState

	require.NoError(t, LoadState(dir, "state", codec, &loaded))
	assert.Equal(t, testState{Name: "x", Selected: []int{1}}, loaded)
}

func TestSaveState_Failures(t *testing.T) {
	t.Parallel()

	require.Error(t, SaveState(filepath.Join(t.TempDir(), "missing"), "s", NewJSONCodec(), testState{}))

	dir := t.TempDir()
	require.Error(t, SaveState(dir, "s", NewJSONCodec(), math.NaN()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadState_Failures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var s testState

	require.Error(t, LoadState(dir, "none", NewJSONCodec(), &s))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0o600))
	require.Error(t, LoadState(dir, "bad", NewJSONCodec(), &s))
}
