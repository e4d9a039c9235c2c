package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesPrivateDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "exports")

	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir), "must be idempotent")

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm())
	}
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	require.Error(t, EnsureDir(path))
}

func TestAtomic_CommitMakesFileVisible(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	final := filepath.Join(dir, "export.json")

	a, err := CreateAtomic(dir, ".export-*.tmp")
	require.NoError(t, err)
	defer a.Abort()

	_, err = a.Write([]byte(`{"ok":true}`))
	require.NoError(t, err)

	require.Error(t, a.Commit(final), "commit before finish")
	require.NoError(t, a.Finish())
	require.NoError(t, a.Commit(final))

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(data))

	a.Abort()
	_, err = os.Stat(final)
	require.NoError(t, err, "abort after commit keeps the file")
}

func TestAtomic_AbortRemovesTemp(t *testing.T) {
	dir := t.TempDir()

	a, err := CreateAtomic(dir, ".export-*.tmp")
	require.NoError(t, err)
	_, err = a.Write([]byte("partial"))
	require.NoError(t, err)

	a.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
