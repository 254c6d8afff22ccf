package source

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nxpack/internal/nxerr"
)

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	t.Parallel()

	payload := []byte("\x7fELF payload")
	assert.Equal(t, CompressionNone, Detect(payload))
	assert.Equal(t, CompressionZstd, Detect(zstdBytes(t, payload)))
	assert.Equal(t, CompressionGzip, Detect(gzipBytes(t, payload)))
	assert.Equal(t, CompressionNone, Detect(nil))
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("\x7fELF segment data "), 64)
	dir := t.TempDir()

	tests := []struct {
		name string
		data []byte
		want Compression
	}{
		{"plain.elf", payload, CompressionNone},
		{"app.elf.zst", zstdBytes(t, payload), CompressionZstd},
		{"app.elf.gz", gzipBytes(t, payload), CompressionGzip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))

			got, c, err := ReadFile(path, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
			assert.Equal(t, payload, got)
		})
	}
}

func TestReadFileLimit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "big")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	_, _, err := ReadFile(path, 32)
	assert.ErrorIs(t, err, nxerr.ErrCapacityExceeded)

	zpath := filepath.Join(dir, "big.zst")
	require.NoError(t, os.WriteFile(zpath, zstdBytes(t, make([]byte, 4096)), 0o644))
	_, _, err = ReadFile(zpath, 1024)
	assert.Error(t, err)
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()

	_, _, err := ReadFile(filepath.Join(t.TempDir(), "missing"), 0)
	assert.ErrorIs(t, err, nxerr.ErrMalformedInput)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDecodeCorrupt(t *testing.T) {
	t.Parallel()

	_, c, err := Decode(append([]byte{0x1f, 0x8b}, []byte("not gzip")...), 0)
	assert.Equal(t, CompressionGzip, c)
	assert.ErrorIs(t, err, nxerr.ErrMalformedInput)
}
