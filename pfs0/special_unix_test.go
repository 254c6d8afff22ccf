//go:build unix

package pfs0

import (
	"context"
	"io/fs"
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
	testutil.WriteTree(t, dir, map[string]string{"main.nso": "code"})
	require.NoError(t, unix.Mkfifo(filepath.Join(dir, "pipe"), 0o600))

	_, err := Build(context.Background(), dir)
	assert.ErrorIs(t, err, nxerr.ErrUnsupportedEntry)

	img, err := Build(context.Background(), dir, WithExclude(func(p string, _ fs.DirEntry) bool {
		return p == "pipe"
	}))
	require.NoError(t, err)
	names, files := parse(t, img)
	assert.Equal(t, []string{"main.nso"}, names)
	assert.Equal(t, []byte("code"), files["main.nso"])
}
