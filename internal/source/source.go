// Package source reads encoder inputs into memory.
//
// Inputs are loaded whole because every encoder needs random access to them.
// Build systems often keep unstripped ELF files compressed, so zstd and gzip
// streams are detected by their magic numbers and decompressed transparently.
package source

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/sizing"
)

// DefaultMaxSize is the default maximum size of a decoded input (512MB).
const DefaultMaxSize = 512 << 20

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// Compression identifies how an input was stored on disk.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionGzip
)

// String returns the string representation of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Detect reports the compression of data from its leading bytes.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// ReadFile reads the named file, decompressing it if needed.
// A maxSize of 0 uses DefaultMaxSize.
func ReadFile(name string, maxSize uint64) ([]byte, Compression, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, CompressionNone, nxerr.Unreadable("open "+name, err)
	}
	defer f.Close()

	raw, err := sizing.ReadLimited(f, maxSize, name)
	if err != nil {
		if sizing.IsCapacity(err) {
			return nil, CompressionNone, err
		}
		return nil, CompressionNone, nxerr.Unreadable("read "+name, err)
	}
	data, c, err := Decode(raw, maxSize)
	if err != nil {
		return nil, c, fmt.Errorf("%s: %w", name, err)
	}
	return data, c, nil
}

// Decode returns data with any zstd or gzip framing removed.
func Decode(data []byte, maxSize uint64) ([]byte, Compression, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	c := Detect(data)
	var r io.Reader
	switch c {
	case CompressionNone:
		return data, c, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(bytes.NewReader(data),
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxSize))
		if err != nil {
			return nil, c, nxerr.Malformedf("zstd: %v", err)
		}
		defer dec.Close()
		r = dec
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, c, nxerr.Malformedf("gzip: %v", err)
		}
		defer zr.Close()
		r = zr
	}

	out, err := sizing.ReadLimited(r, maxSize, "decoded input")
	if err != nil {
		if sizing.IsCapacity(err) {
			return nil, c, err
		}
		return nil, c, nxerr.Malformedf("%s: %v", c, err)
	}
	return out, c, nil
}
