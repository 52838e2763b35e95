package manifest

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const cargoSources = `[
    {
        "type": "archive",
        "archive-type": "tar-gzip",
        "url": "https://static.crates.io/crates/adler/adler-1.0.2.crate",
        "sha256": "f26201604c87b1e01bd3d98f8d5d9a8fcbb815e8cedb41ffccbeb4bf593a35fe",
        "dest": "cargo/vendor/adler-1.0.2"
    },
    {
        "type": "inline",
        "contents": "{\"package\": \"f26201604c87b1e01bd3d98f8d5d9a8fcbb815e8cedb41ffccbeb4bf593a35fe\", \"files\": {}}",
        "dest": "cargo/vendor/adler-1.0.2",
        "dest-filename": ".cargo-checksum.json"
    },
    {
        "type": "inline",
        "contents": "[source.vendored-sources]\ndirectory = \"cargo/vendor\"\n",
        "dest": "cargo",
        "dest-filename": "config"
    }
]`

func convert(t *testing.T, input string) string {
	t.Helper()

	var out bytes.Buffer
	require.NoError(t, Convert(strings.NewReader(input), &out))
	return out.String()
}

func TestConvert_Deterministic(t *testing.T) {
	first := convert(t, cargoSources)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, convert(t, cargoSources)); diff != "" {
			t.Fatalf("output changed between runs (-first +now):\n%s", diff)
		}
	}
}

func TestConvert_BlockStyle(t *testing.T) {
	out := convert(t, cargoSources)

	assert.True(t, strings.HasPrefix(out, "- type: archive\n  archive-type: tar-gzip\n"), "unexpected output:\n%s", out)
	assert.NotContains(t, out, "\t")
}

func TestConvert_KeepsKeyOrder(t *testing.T) {
	out := convert(t, cargoSources)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Content, 1)

	seq := doc.Content[0]
	require.Equal(t, yaml.SequenceNode, seq.Kind)
	require.Len(t, seq.Content, 3)

	keys := []string{}
	for i := 0; i < len(seq.Content[0].Content); i += 2 {
		keys = append(keys, seq.Content[0].Content[i].Value)
	}

	want := []string{"type", "archive-type", "url", "sha256", "dest"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_PreservesValues(t *testing.T) {
	var want interface{}
	require.NoError(t, yaml.Unmarshal([]byte(cargoSources), &want))

	var got interface{}
	require.NoError(t, yaml.Unmarshal([]byte(convert(t, cargoSources)), &got))

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values changed (-json +yaml):\n%s", diff)
	}
}

func TestConvert_ScalarTypes(t *testing.T) {
	out := convert(t, `{"str": "true", "num": "42", "bool": true, "int": 42, "float": 1.5, "null": null, "empty": [], "obj": {}}`)

	var got map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))

	assert.Equal(t, "true", got["str"])
	assert.Equal(t, "42", got["num"])
	assert.Equal(t, true, got["bool"])
	assert.Equal(t, 42, got["int"])
	assert.Equal(t, 1.5, got["float"])
	assert.Nil(t, got["null"])
	assert.Contains(t, got, "null")
	assert.Equal(t, []interface{}{}, got["empty"])
	assert.Equal(t, map[string]interface{}{}, got["obj"])
}

func TestConvert_InvalidInput(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"truncated":  `[{"type": "archive"`,
		"trailing":   `{} {}`,
		"garbage":    `{"type": archive}`,
		"huge float": `{"size": 1e400}`,
		"huge int":   `[123456789012345678901234567890]`,
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			require.Error(t, Convert(strings.NewReader(input), &out))
		})
	}
}

func TestConvert_ReadsBack(t *testing.T) {
	input := `{"a": "true", "b": "123", "c": "null", "d": "- x", "e": "k: v", "f": "line\nline\n\n", "g": 1.5e300, "h": -42, "i": 0.25}`

	var out bytes.Buffer
	require.NoError(t, Convert(strings.NewReader(input), &out))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, map[string]interface{}{
		"a": "true",
		"b": "123",
		"c": "null",
		"d": "- x",
		"e": "k: v",
		"f": "line\nline\n\n",
		"g": 1.5e300,
		"h": -42,
		"i": 0.25,
	}, decoded)
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "generated-sources.json")
	require.NoError(t, ioutil.WriteFile(input, []byte(cargoSources), 0o644))

	output, err := ConvertFile(input, "", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "generated-sources.yml"), output)

	first, err := ioutil.ReadFile(output)
	require.NoError(t, err)

	_, err = ConvertFile(input, output, false)
	require.Error(t, err, "existing output must not be replaced without force")

	_, err = ConvertFile(input, output, true)
	require.NoError(t, err)

	second, err := ioutil.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConvertFile_BrokenInputKeepsOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	output := filepath.Join(dir, "out.yml")
	require.NoError(t, ioutil.WriteFile(input, []byte(`[{"type":`), 0o644))
	require.NoError(t, ioutil.WriteFile(output, []byte("old: true\n"), 0o644))

	_, err := ConvertFile(input, output, true)
	require.Error(t, err)

	content, err := ioutil.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "old: true\n", string(content))
}
