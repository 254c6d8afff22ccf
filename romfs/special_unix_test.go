//go:build unix

package romfs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/testutil"
)

func TestBuildNamedPipe(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"a.txt": "hi", "sub/b.txt": "bye"})
	require.NoError(t, unix.Mkfifo(filepath.Join(dir, "sub", "pipe"), 0o600))

	_, err := Build(context.Background(), dir)
	assert.ErrorIs(t, err, nxerr.ErrUnsupportedEntry)
	assert.Contains(t, err.Error(), "sub/pipe")

	img, err := Build(context.Background(), dir, WithExclude(func(_ string, d fs.DirEntry) bool {
		return d.Type()&fs.ModeNamedPipe != 0
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"a.txt":     []byte("hi"),
		"sub/b.txt": []byte("bye"),
	}, readImage(t, img).files)
}

func TestBuildUnreadableDir(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not apply to root")
	}

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"a.txt": "hi", "locked/b.txt": "bye"})
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	_, err := Build(context.Background(), dir)
	assert.ErrorIs(t, err, nxerr.ErrMalformedInput)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.NotErrorIs(t, err, nxerr.ErrIO)
}
