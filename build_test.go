package nxpack

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nxpack/internal/testutil"
	"github.com/meigma/nxpack/nacp"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeELF(t *testing.T, dir string) string {
	t.Helper()
	e := testutil.ThreeSegmentELF(
		bytes.Repeat([]byte{0x1f, 0x20, 0x03, 0xd5}, 0x100),
		[]byte("read only data"),
		[]byte("writable"),
		0x2000,
	)
	return writeFile(t, dir, "app.elf", e.Bytes())
}

func TestBuildNRO(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	elfPath := writeELF(t, dir)

	var out bytes.Buffer
	require.NoError(t, BuildNRO(context.Background(), elfPath, &out))

	img := out.Bytes()
	assert.Equal(t, "NRO0", string(img[0x10:0x14]))
	size := binary.LittleEndian.Uint32(img[0x18:])
	assert.Len(t, img, int(size), "no asset section")
	assert.Equal(t, uint32(0x2000), binary.LittleEndian.Uint32(img[0x38:]))
}

func TestBuildNROWithAssets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	elfPath := writeELF(t, dir)
	iconPath := writeFile(t, dir, "icon.jpg", testutil.Icon(t, 256, 256))
	nacpPath := writeFile(t, dir, "app.toml", []byte("name = \"App\"\nauthor = \"Dev\"\nversion = \"1.0\"\n"))
	romfsDir := filepath.Join(dir, "romfs")
	testutil.WriteTree(t, romfsDir, map[string]string{"data/level.bin": "level"})

	var out bytes.Buffer
	err := BuildNRO(context.Background(), elfPath, &out,
		WithIcon(iconPath),
		WithNACP(nacpPath),
		WithRomFS(romfsDir),
	)
	require.NoError(t, err)

	img := out.Bytes()
	base := int(binary.LittleEndian.Uint32(img[0x18:]))
	require.Equal(t, "ASET", string(img[base:base+4]))

	member := func(i int) []byte {
		off := binary.LittleEndian.Uint64(img[base+8+i*16:])
		size := binary.LittleEndian.Uint64(img[base+16+i*16:])
		require.NotZero(t, size)
		return img[base+int(off) : base+int(off+size)]
	}
	icon, err := os.ReadFile(iconPath)
	require.NoError(t, err)
	assert.Equal(t, icon, member(0))

	descriptor := member(1)
	assert.Len(t, descriptor, nacp.Size)
	assert.True(t, bytes.HasPrefix(descriptor, []byte("App\x00")))

	romfs := member(2)
	assert.Equal(t, uint64(0x50), binary.LittleEndian.Uint64(romfs))
	assert.Equal(t, base+0x38+len(icon)+nacp.Size+len(romfs), len(img))
}

func TestBuildNROBadIcon(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	elfPath := writeELF(t, dir)

	small := writeFile(t, dir, "small.jpg", testutil.Icon(t, 64, 64))
	err := BuildNRO(context.Background(), elfPath, &bytes.Buffer{}, WithIcon(small))
	assert.ErrorIs(t, err, ErrValidation)

	png := writeFile(t, dir, "icon.png", []byte("\x89PNG\r\n\x1a\n"))
	err = BuildNRO(context.Background(), elfPath, &bytes.Buffer{}, WithIcon(png))
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestBuildNROMissingInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	elfPath := writeELF(t, dir)

	err := BuildNRO(context.Background(), filepath.Join(dir, "missing.elf"), &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrMalformedInput)

	err = BuildNRO(context.Background(), elfPath, &bytes.Buffer{}, WithRomFS(filepath.Join(dir, "nope")))
	assert.ErrorIs(t, err, ErrMalformedInput)

	notELF := writeFile(t, dir, "notes.txt", []byte("not an elf"))
	err = BuildNRO(context.Background(), notELF, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestBuildNSOCompressedInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw, err := os.ReadFile(writeELF(t, dir))
	require.NoError(t, err)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	elfPath := writeFile(t, dir, "app.elf.zst", enc.EncodeAll(raw, nil))
	require.NoError(t, enc.Close())

	var plain, compressed bytes.Buffer
	require.NoError(t, BuildNSO(context.Background(), filepath.Join(dir, "app.elf"), &plain))
	require.NoError(t, BuildNSO(context.Background(), elfPath, &compressed))
	assert.Equal(t, "NSO0", string(compressed.Bytes()[:4]))
	assert.Equal(t, plain.Bytes(), compressed.Bytes())
}

func TestBuildNSOMaxInputSize(t *testing.T) {
	t.Parallel()

	elfPath := writeELF(t, t.TempDir())
	err := BuildNSO(context.Background(), elfPath, &bytes.Buffer{}, WithMaxInputSize(16))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestBuildRomFSAndPFS0(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"a.txt": "hi", "b.txt": "bye"})

	var img bytes.Buffer
	require.NoError(t, BuildRomFS(context.Background(), dir, &img))
	assert.Equal(t, uint64(0x50), binary.LittleEndian.Uint64(img.Bytes()))

	var archive bytes.Buffer
	require.NoError(t, BuildPFS0(context.Background(), dir, &archive))
	assert.Equal(t, "PFS0", string(archive.Bytes()[:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(archive.Bytes()[4:]))

	testutil.WriteTree(t, dir, map[string]string{"sub/c.txt": "c"})
	err := BuildPFS0(context.Background(), dir, &archive)
	assert.ErrorIs(t, err, ErrUnsupportedEntry)
	assert.Equal(t, ErrUnsupportedEntry, ErrorKind(err))
}

func TestBuildNACP(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "app.json", []byte(`{"name": "App", "author": "Dev"}`))
	tomlPath := writeFile(t, dir, "app.toml", []byte("name = \"App\"\nauthor = \"Dev\"\n"))

	var fromJSON, fromTOML bytes.Buffer
	require.NoError(t, BuildNACP(context.Background(), jsonPath, &fromJSON))
	require.NoError(t, BuildNACP(context.Background(), tomlPath, &fromTOML))
	assert.Len(t, fromJSON.Bytes(), nacp.Size)
	assert.Equal(t, fromJSON.Bytes(), fromTOML.Bytes())

	long := writeFile(t, dir, "long.json", []byte(`{"name": "`+strings.Repeat("x", 0x200)+`"}`))
	err := BuildNACP(context.Background(), long, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBuildProgress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{"a": "1"})

	var stages []ProgressStage
	err := BuildRomFS(context.Background(), dir, &bytes.Buffer{}, WithProgress(func(ev ProgressEvent) {
		stages = append(stages, ev.Stage)
	}))
	require.NoError(t, err)
	assert.Equal(t, []ProgressStage{StageEnumerating, StagePacking, StageWriting}, stages)
}

func TestBuildCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := BuildNSO(ctx, writeELF(t, t.TempDir()), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
