package posix

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, ioutil.WriteFile(path, []byte("x"), 0o644))
}

func TestRemove_RelativeToDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "generated-sources.json"))

	err := Remove(dir, []string{"generated-sources.json"}, false, false)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "generated-sources.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemove_MissingFile(t *testing.T) {
	dir := t.TempDir()

	err := Remove(dir, []string{"nope"}, false, false)
	require.Error(t, err)

	err = Remove(dir, []string{"nope"}, false, true)
	require.NoError(t, err, "-f must ignore missing files")
}

func TestRemove_DirectoryNeedsRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "build-dir", "files", "bin", "app"))

	err := Remove(dir, []string{"build-dir"}, false, false)
	require.Error(t, err)
	assert.DirExists(t, filepath.Join(dir, "build-dir"))

	err = Remove(dir, []string{"build-dir"}, true, false)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "build-dir"))
}

func TestRemove_NothingDeletedOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"))

	err := Remove(dir, []string{"a.txt", "missing.txt"}, false, false)
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "a.txt"))
}

func TestMkdir(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, Mkdir(dir, []string{"a/b/c"}, false))
	require.NoError(t, Mkdir(dir, []string{"a/b/c"}, true))
	assert.DirExists(t, filepath.Join(dir, "a", "b", "c"))

	require.NoError(t, Mkdir(dir, []string{"a/b/c"}, true), "-p must accept existing directories")
	require.Error(t, Mkdir(dir, []string{"a"}, false))
}

func TestMove_Rename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.yml"))

	require.NoError(t, Move(dir, []string{"old.yml"}, "new.yml"))
	assert.FileExists(t, filepath.Join(dir, "new.yml"))
	assert.NoFileExists(t, filepath.Join(dir, "old.yml"))
}

func TestMove_IntoDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"))
	writeFile(t, filepath.Join(dir, "b.json"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "out"), 0o755))

	require.NoError(t, Move(dir, []string{"a.json", "b.json"}, "out"))
	assert.FileExists(t, filepath.Join(dir, "out", "a.json"))
	assert.FileExists(t, filepath.Join(dir, "out", "b.json"))
}

func TestMove_MultipleNeedsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"))
	writeFile(t, filepath.Join(dir, "b.json"))

	err := Move(dir, []string{"a.json", "b.json"}, "c.json")
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "a.json"))
}

func TestMove_MissingDestinationParent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"))

	require.Error(t, Move(dir, []string{"a.json"}, "missing/a.json"))
	require.Error(t, Move(dir, nil, "x"))
}
