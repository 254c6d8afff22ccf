package nxo

import (
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/pierrec/lz4"

	"github.com/meigma/nxpack/internal/layout"
	"github.com/meigma/nxpack/internal/nxerr"
)

const (
	nsoHeaderSize = 0x100

	// MaxSegmentSize is the largest segment either executable format can
	// address with its 32-bit size fields, rounded down to PageSize.
	MaxSegmentSize = 0xFFFFF000

	lz4HashTableSize = 1 << 16
)

var nsoMagic = [4]byte{'N', 'S', 'O', '0'}

// NSO flag bits. Bits 0-2 mark compressed segments, bits 3-5 ask the loader
// to verify the segment hash.
const (
	nsoFlagCompressed = 1 << 0
	nsoFlagHashed     = 1 << 3
)

// NSOSegment describes one encoded segment of an NSO image.
type NSOSegment struct {
	FileOffset     uint32
	MemOffset      uint32
	Size           uint32 // decompressed size
	CompressedSize uint32
	Compressed     bool
	Hash           [0x20]byte // sha256 of the decompressed contents
}

// NSOHeader is the fixed 0x100-byte NSO header.
//
// Bytes:
//   - 0x00: "NSO0", version, reserved, flags
//   - 0x10: text {file offset, memory offset, size, module name offset}
//   - 0x20: rodata {file offset, memory offset, size, module name size}
//   - 0x30: data {file offset, memory offset, size, bss size}
//   - 0x40: module id
//   - 0x60: compressed sizes of text, rodata, data
//   - 0x88: api info, dynstr, dynsym {offset, size} relative to rodata
//   - 0xA0: sha256 of text, rodata, data
type NSOHeader struct {
	Segments [3]NSOSegment
	BssSize  uint32
	ModuleID ModuleID
	APIInfo  SectionRef
	DynStr   SectionRef
	DynSym   SectionRef
}

// Flags returns the header flag word.
func (h *NSOHeader) Flags() uint32 {
	var flags uint32
	for i, s := range h.Segments {
		if s.Compressed {
			flags |= nsoFlagCompressed << i
		}
		flags |= nsoFlagHashed << i
	}
	return flags
}

// Marshal serializes the header to its 0x100-byte encoding.
func (h *NSOHeader) Marshal() []byte {
	w := layout.New(nsoHeaderSize)
	w.Magic(nsoMagic)
	w.U32(0) // version
	w.U32(0) // reserved
	w.U32(h.Flags())
	trailer := [3]uint32{0, 0, h.BssSize} // module name offset, module name size, bss
	for i, s := range h.Segments {
		w.U32(s.FileOffset)
		w.U32(s.MemOffset)
		w.U32(s.Size)
		w.U32(trailer[i])
	}
	_, _ = w.Write(h.ModuleID[:])
	for _, s := range h.Segments {
		w.U32(s.CompressedSize)
	}
	w.Pad(0x1C)
	for _, s := range []SectionRef{h.APIInfo, h.DynStr, h.DynSym} {
		w.U32(s.Offset)
		w.U32(s.Size)
	}
	for _, s := range h.Segments {
		_, _ = w.Write(s.Hash[:])
	}
	return w.Bytes()
}

// compressSegment LZ4 block-compresses data. It returns data unchanged and
// false when compression would not make it smaller.
func compressSegment(data []byte, hashTable []int) ([]byte, bool, error) {
	if len(data) == 0 {
		return data, false, nil
	}
	clear(hashTable)
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, hashTable)
	if err != nil {
		return nil, false, fmt.Errorf("lz4: %w", err)
	}
	if n == 0 || n >= len(data) {
		return data, false, nil
	}
	return dst[:n], true, nil
}

// segmentHash returns the sha256 digest of data.
func segmentHash(data []byte) [0x20]byte {
	h := digest.SHA256.Digester().Hash()
	h.Write(data)
	var sum [0x20]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// EncodeNSO lays out m as an NSO image with each segment LZ4 compressed.
func EncodeNSO(m *Module) ([]byte, error) {
	if err := checkModule(m); err != nil {
		return nil, err
	}

	h := NSOHeader{
		BssSize:  m.BssSize,
		ModuleID: m.ID,
		APIInfo:  m.APIInfo,
		DynStr:   m.DynStr,
		DynSym:   m.DynSym,
	}
	hashTable := make([]int, lz4HashTableSize)
	var payloads [3][]byte
	offset := uint64(nsoHeaderSize)
	for i := range m.Segments {
		seg := &m.Segments[i]
		payload, compressed, err := compressSegment(seg.Data, hashTable)
		if err != nil {
			return nil, fmt.Errorf("%s segment: %w", seg.Kind, err)
		}
		if offset+uint64(len(payload)) > MaxSegmentSize {
			return nil, nxerr.Capacityf("nso image exceeds %#x bytes", uint64(MaxSegmentSize))
		}
		h.Segments[i] = NSOSegment{
			FileOffset:     uint32(offset),
			MemOffset:      seg.Addr,
			Size:           uint32(len(seg.Data)),
			CompressedSize: uint32(len(payload)),
			Compressed:     compressed,
			Hash:           segmentHash(seg.Data),
		}
		payloads[i] = payload
		offset += uint64(len(payload))
	}

	w := layout.New(int(offset))
	_, _ = w.Write(h.Marshal())
	for _, p := range payloads {
		_, _ = w.Write(p)
	}
	return w.Bytes(), nil
}

// WriteNSO encodes m as an NSO image and writes it to out.
func WriteNSO(out io.Writer, m *Module) error {
	image, err := EncodeNSO(m)
	if err != nil {
		return err
	}
	if _, err := out.Write(image); err != nil {
		return nxerr.IO("write nso", err)
	}
	return nil
}
