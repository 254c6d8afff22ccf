package nxo

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/sizing"
)

// PageSize is the alignment unit for segment layout.
const PageSize = 0x1000

// ModuleIDSize is the length of a module identifier.
const ModuleIDSize = 0x20

// ntGNUBuildID is the note type of a GNU build-id note.
const ntGNUBuildID = 3

// A SegmentKind is the role of a loadable segment.
type SegmentKind uint8

const (
	// Text is executable code.
	Text SegmentKind = iota
	// ROData is read-only data.
	ROData
	// Data is read-write data. Uninitialized data follows it in memory.
	Data
)

// String returns the conventional name of the segment kind.
func (k SegmentKind) String() string {
	switch k {
	case Text:
		return "text"
	case ROData:
		return "rodata"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// A ModuleID identifies a build of a module.
type ModuleID [ModuleIDSize]byte

// String returns the identifier as hex.
func (id ModuleID) String() string {
	return hex.EncodeToString(id[:])
}

// A Segment is a contiguous range of the module image.
type Segment struct {
	Kind SegmentKind
	Addr uint32 // virtual address relative to the module base
	Data []byte // initialized contents
}

// Size returns the segment size rounded up to PageSize.
func (s *Segment) Size() uint32 {
	return uint32(sizing.AlignUp(uint64(len(s.Data)), PageSize))
}

// A SectionRef locates a section relative to the start of the rodata segment.
type SectionRef struct {
	Offset uint32
	Size   uint32
}

// A Module is the loadable content of an ELF executable.
type Module struct {
	Segments [3]Segment // indexed by SegmentKind
	BssSize  uint32     // page-aligned size of uninitialized data after Data
	ID       ModuleID

	APIInfo SectionRef
	DynStr  SectionRef
	DynSym  SectionRef

	// BuildIDFromNote is set when ID came from a GNU build-id note rather
	// than a digest of the segment contents.
	BuildIDFromNote bool
}

// Segment returns the segment of the given kind.
func (m *Module) Segment(k SegmentKind) *Segment {
	return &m.Segments[k]
}

// addrRange is a half-open range of virtual addresses.
type addrRange struct {
	addr uint64
	size uint64
}

// overlaps returns true if the ranges contain any bytes in common.
func (x addrRange) overlaps(y addrRange) bool {
	return x.addr+x.size > y.addr && y.addr+y.size > x.addr
}

// contains returns true if x contains all of y.
func (x addrRange) contains(y addrRange) bool {
	return x.addr <= y.addr && y.addr+y.size <= x.addr+x.size
}

// loadSegment is a PT_LOAD program header assigned to a segment kind.
type loadSegment struct {
	addrRange
	index int
	kind  SegmentKind
	prog  *elf.Prog
}

// Extract reads an ELF executable and returns its loadable segments.
func Extract(data []byte) (*Module, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, nxerr.Malformedf("elf: %v", err)
	}
	defer f.Close()

	if err := checkHeader(f); err != nil {
		return nil, err
	}
	if len(f.Progs) == 0 {
		return nil, nxerr.Malformedf("elf: no program headers")
	}
	if len(f.Sections) == 0 {
		return nil, nxerr.Malformedf("elf: no section headers")
	}

	loads, err := assignSegments(f, uint64(len(data)))
	if err != nil {
		return nil, err
	}

	m := &Module{}
	base := loads[Text].addr
	for _, ls := range loads {
		if ls == nil {
			continue
		}
		seg, err := readSegment(ls, base, data)
		if err != nil {
			return nil, fmt.Errorf("segment %d (%s): %w", ls.index, ls.kind, err)
		}
		m.Segments[ls.kind] = seg
	}
	fillAbsentSegments(m)

	if d := loads[Data]; d != nil {
		mem := sizing.AlignUp(d.prog.Memsz, PageSize)
		file := sizing.AlignUp(d.prog.Filesz, PageSize)
		bss, err := sizing.ToUint32(mem-file, "bss size")
		if err != nil {
			return nil, err
		}
		m.BssSize = bss
	}

	if id, ok := readBuildID(f, data); ok {
		m.ID = id
		m.BuildIDFromNote = true
	} else {
		m.ID = segmentDigest(m)
	}

	if ro := loads[ROData]; ro != nil {
		m.APIInfo = sectionRef(f, ".api_info", ro)
		m.DynStr = sectionRef(f, ".dynstr", ro)
		m.DynSym = sectionRef(f, ".dynsym", ro)
	}
	return m, nil
}

// checkHeader rejects ELF files the loader cannot run.
func checkHeader(f *elf.File) error {
	if f.Data != elf.ELFDATA2LSB {
		return nxerr.Malformedf("elf has data %s, expected ELFDATA2LSB", f.Data)
	}
	if f.Type != elf.ET_DYN && f.Type != elf.ET_EXEC {
		return nxerr.Malformedf("elf has type %s, expected ET_DYN or ET_EXEC", f.Type)
	}
	switch {
	case f.Class == elf.ELFCLASS64 && f.Machine == elf.EM_AARCH64:
	case f.Class == elf.ELFCLASS32 && f.Machine == elf.EM_ARM:
	default:
		return nxerr.Malformedf("elf has machine %s (%s), expected EM_AARCH64 or EM_ARM", f.Machine, f.Class)
	}
	return nil
}

// segmentKind maps program header permissions to a segment kind.
func segmentKind(flags elf.ProgFlag) (SegmentKind, error) {
	const knownFlags = elf.PF_X | elf.PF_W | elf.PF_R
	if unknown := flags &^ knownFlags; unknown != 0 {
		return 0, fmt.Errorf("segment has unknown flags 0x%08x", uint32(unknown))
	}
	switch flags {
	case elf.PF_R | elf.PF_X, elf.PF_X:
		return Text, nil
	case elf.PF_R:
		return ROData, nil
	case elf.PF_R | elf.PF_W:
		return Data, nil
	default:
		return 0, fmt.Errorf("segment has unsupported permissions %s", flags)
	}
}

// assignSegments assigns each PT_LOAD program header to a segment kind and
// checks that the segments are ordered, page aligned, disjoint, and inside
// the file.
func assignSegments(f *elf.File, fileSize uint64) ([3]*loadSegment, error) {
	var loads [3]*loadSegment
	var count int
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		kind, err := segmentKind(p.Flags)
		if err != nil {
			return loads, nxerr.Malformedf("segment %d: %v", i, err)
		}
		if prev := loads[kind]; prev != nil {
			return loads, nxerr.Malformedf("segment %d: second %s segment (first is segment %d)", i, kind, prev.index)
		}
		if p.Filesz > p.Memsz {
			return loads, nxerr.Malformedf("segment %d: file size %#x exceeds memory size %#x", i, p.Filesz, p.Memsz)
		}
		if p.Off > fileSize || p.Filesz > fileSize-p.Off {
			return loads, nxerr.Malformedf("segment %d: file range %#x+%#x outside %#x-byte file", i, p.Off, p.Filesz, fileSize)
		}
		if p.Vaddr%PageSize != 0 {
			return loads, nxerr.Malformedf("segment %d: address %#x is not page aligned", i, p.Vaddr)
		}
		if p.Vaddr+p.Memsz < p.Vaddr {
			return loads, nxerr.Malformedf("segment %d: address range wraps", i)
		}
		loads[kind] = &loadSegment{
			addrRange: addrRange{addr: p.Vaddr, size: sizing.AlignUp(p.Memsz, PageSize)},
			index:     i,
			kind:      kind,
			prog:      p,
		}
		count++
	}
	if count == 0 {
		return loads, nxerr.Malformedf("elf: no loadable segments")
	}
	if loads[Text] == nil {
		return loads, nxerr.Malformedf("elf: no executable segment")
	}

	var prev *loadSegment
	for _, ls := range loads {
		if ls == nil {
			continue
		}
		if prev != nil {
			if ls.addr < prev.addr {
				return loads, nxerr.Malformedf("segment %d (%s) at %#x precedes segment %d (%s) at %#x",
					ls.index, ls.kind, ls.addr, prev.index, prev.kind, prev.addr)
			}
			if ls.overlaps(prev.addrRange) {
				return loads, nxerr.Malformedf("segment %d (%s) overlaps segment %d (%s)",
					ls.index, ls.kind, prev.index, prev.kind)
			}
		}
		prev = ls
	}
	return loads, nil
}

// readSegment copies a segment's initialized bytes out of the file. Text and
// rodata are extended with zeros to their memory size; data keeps only its
// file contents since its tail is described by the bss size.
func readSegment(ls *loadSegment, base uint64, data []byte) (Segment, error) {
	p := ls.prog
	size := p.Filesz
	if ls.kind != Data {
		size = p.Memsz
	}
	n, err := sizing.ToInt(size, ls.kind.String()+" segment")
	if err != nil {
		return Segment{}, err
	}
	addr, err := sizing.ToUint32(ls.addr-base, ls.kind.String()+" segment address")
	if err != nil {
		return Segment{}, err
	}
	buf := make([]byte, n)
	copy(buf, data[p.Off:p.Off+p.Filesz])
	return Segment{Kind: ls.kind, Addr: addr, Data: buf}, nil
}

// fillAbsentSegments places missing segments, empty, directly after the
// segment before them so that offsets stay monotonic.
func fillAbsentSegments(m *Module) {
	for k := ROData; k <= Data; k++ {
		seg := &m.Segments[k]
		seg.Kind = k
		if seg.Data != nil {
			continue
		}
		prev := &m.Segments[k-1]
		seg.Addr = prev.Addr + prev.Size()
		seg.Data = []byte{}
	}
}

// readBuildID returns the GNU build-id note, zero padded, if the file has one.
func readBuildID(f *elf.File, data []byte) (ModuleID, bool) {
	var id ModuleID
	order := f.ByteOrder
	for _, p := range f.Progs {
		if p.Type != elf.PT_NOTE {
			continue
		}
		if p.Off > uint64(len(data)) || p.Filesz > uint64(len(data))-p.Off {
			continue
		}
		notes := data[p.Off : p.Off+p.Filesz]
		for len(notes) >= 12 {
			namesz := uint64(order.Uint32(notes[0:]))
			descsz := uint64(order.Uint32(notes[4:]))
			typ := order.Uint32(notes[8:])
			nameEnd := 12 + sizing.AlignUp(namesz, 4)
			descEnd := nameEnd + sizing.AlignUp(descsz, 4)
			if namesz > uint64(len(notes)) || descsz > uint64(len(notes)) || descEnd > uint64(len(notes)) {
				break
			}
			name := notes[12 : 12+namesz]
			if typ == ntGNUBuildID && string(name) == "GNU\x00" {
				copy(id[:], notes[nameEnd:nameEnd+descsz])
				return id, true
			}
			notes = notes[descEnd:]
		}
	}
	return id, false
}

// segmentDigest derives a module identifier from the segment contents.
func segmentDigest(m *Module) ModuleID {
	var id ModuleID
	h := digest.SHA256.Digester().Hash()
	for i := range m.Segments {
		seg := &m.Segments[i]
		var hdr [8]byte
		binary.LittleEndian.PutUint32(hdr[0:], seg.Addr)
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(seg.Data)))
		h.Write(hdr[:])
		h.Write(seg.Data)
	}
	copy(id[:], h.Sum(nil))
	return id
}

// sectionRef locates the named section inside the rodata segment.
func sectionRef(f *elf.File, name string, ro *loadSegment) SectionRef {
	s := f.Section(name)
	if s == nil || s.Type == elf.SHT_NOBITS {
		return SectionRef{}
	}
	if !ro.contains(addrRange{addr: s.Addr, size: s.Size}) {
		return SectionRef{}
	}
	return SectionRef{
		Offset: uint32(s.Addr - ro.addr),
		Size:   uint32(s.Size),
	}
}
