package nxo

import (
	"io"

	"github.com/meigma/nxpack/internal/layout"
	"github.com/meigma/nxpack/internal/nxerr"
)

// NRO header layout. The first nroStartSize bytes of the image belong to the
// text segment (an entry branch and the MOD0 offset); the header follows and
// replaces the space the linker script reserves for it.
const (
	nroStartSize  = 0x10
	nroHeaderSize = 0x70
)

var nroMagic = [4]byte{'N', 'R', 'O', '0'}

// NROHeader is the fixed NRO header at offset 0x10.
//
// Bytes (relative to the image start):
//   - 0x10: "NRO0"
//   - 0x14: version
//   - 0x18: image size, excluding the asset section
//   - 0x1C: flags
//   - 0x20: text, rodata, data {file offset, size}
//   - 0x38: bss size
//   - 0x40: module id
//   - 0x60: dso handle offset
//   - 0x68: api info, dynstr, dynsym {offset, size} relative to rodata
type NROHeader struct {
	Size     uint32
	Flags    uint32
	Segments [3]SectionRef
	BssSize  uint32
	ModuleID ModuleID
	APIInfo  SectionRef
	DynStr   SectionRef
	DynSym   SectionRef
}

// Marshal serializes the header to its 0x70-byte encoding.
func (h *NROHeader) Marshal() []byte {
	w := layout.New(nroHeaderSize)
	w.Magic(nroMagic)
	w.U32(0) // version
	w.U32(h.Size)
	w.U32(h.Flags)
	for _, s := range h.Segments {
		w.U32(s.Offset)
		w.U32(s.Size)
	}
	w.U32(h.BssSize)
	w.U32(0) // reserved
	_, _ = w.Write(h.ModuleID[:])
	w.U32(0) // dso handle offset
	w.U32(0) // reserved
	for _, s := range []SectionRef{h.APIInfo, h.DynStr, h.DynSym} {
		w.U32(s.Offset)
		w.U32(s.Size)
	}
	return w.Bytes()
}

// EncodeNRO lays out m as an NRO image. When assets is non-empty an asset
// section is appended after the data segment.
func EncodeNRO(m *Module, assets *Assets) ([]byte, error) {
	if err := checkModule(m); err != nil {
		return nil, err
	}

	total := 0
	for i := range m.Segments {
		total = int(m.Segments[i].Addr + m.Segments[i].Size())
	}
	w := layout.New(total + assets.size())

	h := NROHeader{
		BssSize:  m.BssSize,
		ModuleID: m.ID,
		APIInfo:  m.APIInfo,
		DynStr:   m.DynStr,
		DynSym:   m.DynSym,
	}
	for i := range m.Segments {
		seg := &m.Segments[i]
		if err := w.PadTo(int(seg.Addr)); err != nil {
			return nil, nxerr.Malformedf("%s segment at %#x overlaps previous segment", seg.Kind, seg.Addr)
		}
		_, _ = w.Write(seg.Data)
		w.Align(PageSize)
		h.Segments[i] = SectionRef{Offset: seg.Addr, Size: seg.Size()}
	}
	h.Size = uint32(w.Len())
	w.PutBytesAt(nroStartSize, h.Marshal())

	if !assets.Empty() {
		if err := assets.encode(w); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// WriteNRO encodes m as an NRO image and writes it to out.
func WriteNRO(out io.Writer, m *Module, assets *Assets) error {
	image, err := EncodeNRO(m, assets)
	if err != nil {
		return err
	}
	if _, err := out.Write(image); err != nil {
		return nxerr.IO("write nro", err)
	}
	return nil
}

// checkModule rejects modules an encoder cannot lay out.
func checkModule(m *Module) error {
	if m == nil {
		return nxerr.Malformedf("module has no segments")
	}
	var n int
	for i := range m.Segments {
		n += len(m.Segments[i].Data)
	}
	if n == 0 {
		return nxerr.Malformedf("module has no segments")
	}
	if len(m.Segments[Text].Data) == 0 {
		return nxerr.Malformedf("module has an empty text segment")
	}
	for i := range m.Segments {
		seg := &m.Segments[i]
		if uint64(len(seg.Data)) > MaxSegmentSize {
			return nxerr.Capacityf("%s segment is %#x bytes, limit %#x",
				seg.Kind, len(seg.Data), uint64(MaxSegmentSize))
		}
		if uint64(seg.Addr)+uint64(seg.Size()) > MaxSegmentSize {
			return nxerr.Capacityf("%s segment ends past %#x", seg.Kind, uint64(MaxSegmentSize))
		}
	}
	return nil
}
