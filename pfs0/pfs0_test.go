package pfs0

import (
	"context"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/testutil"
)

// parse recovers the file list of an archive.
func parse(t *testing.T, b []byte) (names []string, files map[string][]byte) {
	t.Helper()
	require.Equal(t, "PFS0", string(b[:4]))
	count := binary.LittleEndian.Uint32(b[4:])
	strSize := binary.LittleEndian.Uint32(b[8:])
	tables := uint64(HeaderSize) + uint64(count)*EntrySize
	dataStart := tables + uint64(strSize)
	require.Zero(t, dataStart%Align)

	files = map[string][]byte{}
	for i := range uint64(count) {
		rec := b[HeaderSize+i*EntrySize:]
		off := binary.LittleEndian.Uint64(rec)
		size := binary.LittleEndian.Uint64(rec[8:])
		nameOff := uint64(binary.LittleEndian.Uint32(rec[16:]))
		require.Zero(t, off%Align)

		str := b[tables+nameOff : dataStart]
		name := string(str[:strings.IndexByte(string(str), 0)])
		names = append(names, name)
		files[name] = b[dataStart+off : dataStart+off+size]
	}
	return names, files
}

func TestBuild(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{
		"main.npdm": "npdm",
		"main":      strings.Repeat("m", 0x45),
		"rtld":      "r",
		"empty":     "",
	})

	b, err := Build(context.Background(), dir)
	require.NoError(t, err)

	names, files := parse(t, b)
	assert.Equal(t, []string{"empty", "main", "main.npdm", "rtld"}, names)
	assert.Equal(t, map[string][]byte{
		"empty":     {},
		"main":      []byte(strings.Repeat("m", 0x45)),
		"main.npdm": []byte("npdm"),
		"rtld":      []byte("r"),
	}, files)

	// 0x10 + 4*0x18 = 0x70, names take 0x1A bytes, padded to 0xA0.
	assert.Equal(t, uint32(0x30), binary.LittleEndian.Uint32(b[8:]))
	main := b[HeaderSize+EntrySize:]
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(main))
	npdm := b[HeaderSize+2*EntrySize:]
	assert.Equal(t, uint64(0x60), binary.LittleEndian.Uint64(npdm))
	assert.Len(t, b, 0xA0+0x80+1)
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	b, err := Build(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Len(t, b, Align)
	assert.Equal(t, "PFS0", string(b[:4]))
	assert.Zero(t, binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, uint32(0x10), binary.LittleEndian.Uint32(b[8:]))
}

func TestBuildSubdirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"a": "1", "sub/b": "2"})

	_, err := Build(context.Background(), dir)
	assert.ErrorIs(t, err, nxerr.ErrUnsupportedEntry)

	b, err := Build(context.Background(), dir, WithExclude(func(_ string, d fs.DirEntry) bool {
		return d.IsDir()
	}))
	require.NoError(t, err)
	names, _ := parse(t, b)
	assert.Equal(t, []string{"a"}, names)
}

func TestBuildSymlink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"a": "1"})
	require.NoError(t, os.Symlink("a", filepath.Join(dir, "b")))

	_, err := Build(context.Background(), dir)
	assert.ErrorIs(t, err, nxerr.ErrUnsupportedEntry)
}

func TestBuildMaxFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"a": "1", "b": "2"})

	_, err := Build(context.Background(), dir, WithMaxFiles(1))
	assert.ErrorIs(t, err, nxerr.ErrCapacityExceeded)
}

func TestBuildDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"x": "1", "y": "22", "z": "333"})

	first, err := Build(context.Background(), dir)
	require.NoError(t, err)
	second, err := Build(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildProgress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"x": "1", "y": "22"})

	var events []ProgressEvent
	_, err := Build(context.Background(), dir, WithProgress(func(ev ProgressEvent) {
		events = append(events, ev)
	}))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "y", events[2].Path)
	assert.Equal(t, uint64(0x22), events[2].BytesDone)
	assert.Equal(t, uint64(0x22), events[2].BytesTotal)
}

func TestWriteSinkFailure(t *testing.T) {
	t.Parallel()

	err := Write(context.Background(), t.TempDir(), failingWriter{})
	assert.ErrorIs(t, err, nxerr.ErrIO)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, assert.AnError }
