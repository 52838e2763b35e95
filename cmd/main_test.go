package cmd

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/buildsys"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetOut(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, config.FileName), []byte("[log]\nlevel = \"error\"\n"), 0o644))
	return root
}

func TestJSON2YAMLCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "generated-sources.json")
	output := filepath.Join(dir, "cargo-sources.yml")
	require.NoError(t, ioutil.WriteFile(input, []byte(`[{"type": "file", "url": "https://example.com/a"}]`), 0o644))

	_, err := execute(t, "json2yaml", input, "-o", output)
	require.NoError(t, err)

	content, err := ioutil.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "- type: file\n  url: https://example.com/a\n", string(content))

	_, err = execute(t, "json2yaml", input, "-o", output, "--force=false")
	require.Error(t, err, "existing outputs are kept without --force")
}

func TestTaskList(t *testing.T) {
	root := newRoot(t)

	out, err := execute(t, "--root", root, "task")
	require.NoError(t, err)
	assert.Contains(t, out, "Available tasks:")
	assert.Contains(t, out, " * generate-sources:")
	assert.Contains(t, out, " * build:")
}

func TestBuildDryRun(t *testing.T) {
	root := newRoot(t)

	_, err := execute(t, "--root", root, "build", "--dry")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root, "venv"))
	assert.NoFileExists(t, filepath.Join(root, "cargo-sources.yml"))
}

func TestInvalidLogLevel(t *testing.T) {
	root := newRoot(t)

	_, err := execute(t, "--root", root, "--log-level", "loud", "clean")
	require.Error(t, err)
	assert.Equal(t, 1, buildsys.ExitCode(err))
}
