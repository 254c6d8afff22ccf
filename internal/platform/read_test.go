package platform

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nxpack/internal/nxerr"
)

func openRoot(t *testing.T, dir string) *os.Root {
	t.Helper()
	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { root.Close() })
	return root
}

func TestReadEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	root := openRoot(t, dir)

	data, err := ReadEntry(root, "a.txt", 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestReadEntrySizeChanged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	root := openRoot(t, dir)

	_, err := ReadEntry(root, "a.txt", 3)
	assert.ErrorIs(t, err, nxerr.ErrMalformedInput)

	_, err = ReadEntry(root, "a.txt", 9)
	assert.ErrorIs(t, err, nxerr.ErrMalformedInput)
}

func TestReadEntryMissing(t *testing.T) {
	t.Parallel()

	root := openRoot(t, t.TempDir())

	_, err := ReadEntry(root, "missing", 0)
	assert.ErrorIs(t, err, nxerr.ErrMalformedInput)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestReadEntrySymlink(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("target", filepath.Join(dir, "link")))
	root := openRoot(t, dir)

	_, err := ReadEntry(root, "link", 1)
	assert.ErrorIs(t, err, nxerr.ErrUnsupportedEntry)
}
