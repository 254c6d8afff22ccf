package nxo

import (
	"bytes"
	"crypto/sha256"
	"math/rand/v2"
	"testing"

	"github.com/pierrec/lz4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/testutil"
)

type nsoSegment struct {
	fileOff, memOff, size, extra, compressedSize uint32
	hash                                         []byte
}

func parseNSOSegments(b []byte) [3]nsoSegment {
	var segs [3]nsoSegment
	for i := range segs {
		base := 0x10 + i*0x10
		segs[i] = nsoSegment{
			fileOff:        u32(b, base),
			memOff:         u32(b, base+4),
			size:           u32(b, base+8),
			extra:          u32(b, base+12),
			compressedSize: u32(b, 0x60+i*4),
			hash:           b[0xA0+i*0x20 : 0xC0+i*0x20],
		}
	}
	return segs
}

func TestEncodeNSO(t *testing.T) {
	t.Parallel()

	text := bytes.Repeat([]byte("compressible text "), 0x200)
	rodata := bytes.Repeat([]byte("rodata "), 0x100)
	data := bytes.Repeat([]byte("data "), 0x40)
	m := extract(t, testutil.ThreeSegmentELF(text, rodata, data, 0x3000))

	out, err := EncodeNSO(m)
	require.NoError(t, err)

	require.Equal(t, "NSO0", string(out[:4]))
	assert.Equal(t, uint32(0x3f), u32(out, 0x0C), "all segments compressed and hashed")
	assert.Equal(t, m.ID[:], out[0x40:0x60])

	segs := parseNSOSegments(out)
	assert.Equal(t, uint32(nsoHeaderSize), segs[Text].fileOff)
	assert.Equal(t, uint32(0x3000), segs[Data].extra, "bss size")

	want := [][]byte{text, rodata, data}
	next := uint32(nsoHeaderSize)
	for i, seg := range segs {
		assert.Equal(t, next, seg.fileOff, "segment %d is contiguous", i)
		assert.Equal(t, m.Segments[i].Addr, seg.memOff)
		assert.Equal(t, uint32(len(want[i])), seg.size)
		assert.Less(t, seg.compressedSize, seg.size)

		decoded := make([]byte, seg.size)
		n, err := lz4.UncompressBlock(out[seg.fileOff:seg.fileOff+seg.compressedSize], decoded)
		require.NoError(t, err)
		assert.Equal(t, want[i], decoded[:n])

		sum := sha256.Sum256(want[i])
		assert.Equal(t, sum[:], seg.hash)
		next += seg.compressedSize
	}
	assert.Len(t, out, int(next))
}

func TestEncodeNSOIncompressible(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	text := make([]byte, 0x800)
	for i := range text {
		text[i] = byte(rng.Uint32())
	}
	m := extract(t, testutil.SimpleELF(text))

	out, err := EncodeNSO(m)
	require.NoError(t, err)

	flags := u32(out, 0x0C)
	assert.Zero(t, flags&nsoFlagCompressed, "random text stored raw")
	assert.Equal(t, uint32(0x38), flags)

	segs := parseNSOSegments(out)
	assert.Equal(t, segs[Text].size, segs[Text].compressedSize)
	assert.Equal(t, text, out[nsoHeaderSize:nsoHeaderSize+len(text)])
	assert.Zero(t, segs[ROData].size)
	assert.Zero(t, segs[Data].size)
}

func TestEncodeNSODeterministic(t *testing.T) {
	t.Parallel()

	e := testutil.ThreeSegmentELF(bytes.Repeat([]byte("abc"), 100), []byte("ro"), []byte("rw"), 0)
	a, err := EncodeNSO(extract(t, e))
	require.NoError(t, err)
	b, err := EncodeNSO(extract(t, e))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeNSOEmptyModule(t *testing.T) {
	t.Parallel()

	_, err := EncodeNSO(&Module{})
	assert.ErrorIs(t, err, nxerr.ErrMalformedInput)
}

func TestNSOHeaderSize(t *testing.T) {
	t.Parallel()

	h := NSOHeader{}
	assert.Len(t, h.Marshal(), nsoHeaderSize)

	n := NROHeader{}
	assert.Len(t, n.Marshal(), nroHeaderSize)
}

func TestWriteNSOSinkFailure(t *testing.T) {
	t.Parallel()

	m := extract(t, testutil.SimpleELF([]byte("code")))
	err := WriteNSO(failingWriter{}, m)
	assert.ErrorIs(t, err, nxerr.ErrIO)
}
