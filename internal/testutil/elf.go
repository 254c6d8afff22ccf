package testutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// ELFSegment is a PT_LOAD program header for a synthesized ELF.
type ELFSegment struct {
	Flags   elf.ProgFlag
	Vaddr   uint64
	Data    []byte
	MemSize uint64 // zero means len(Data)
}

// ELFSection is a section header placed inside a loaded segment.
type ELFSection struct {
	Name string
	Type elf.SectionType
	Addr uint64
	Size uint64
}

// ELF describes a minimal little-endian AArch64 executable.
type ELF struct {
	Segments []ELFSegment
	Sections []ELFSection
	BuildID  []byte // written as a GNU build-id note when set
	Type     elf.Type
	Machine  elf.Machine

	// OmitSections leaves out the section header table.
	OmitSections bool
}

// SimpleELF returns an executable with a single text segment holding code.
func SimpleELF(code []byte) *ELF {
	return &ELF{Segments: []ELFSegment{{Flags: elf.PF_R | elf.PF_X, Data: code}}}
}

// ThreeSegmentELF returns an executable with text, rodata and data segments
// at consecutive pages and bssSize bytes of uninitialized data.
func ThreeSegmentELF(text, rodata, data []byte, bssSize uint64) *ELF {
	align := func(n uint64) uint64 { return (n + 0xfff) &^ 0xfff }
	roAddr := align(uint64(len(text)))
	dataAddr := roAddr + align(uint64(len(rodata)))
	return &ELF{Segments: []ELFSegment{
		{Flags: elf.PF_R | elf.PF_X, Vaddr: 0, Data: text},
		{Flags: elf.PF_R, Vaddr: roAddr, Data: rodata},
		{Flags: elf.PF_R | elf.PF_W, Vaddr: dataAddr, Data: data, MemSize: uint64(len(data)) + bssSize},
	}}
}

// Bytes encodes the executable.
func (e *ELF) Bytes() []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
		shdrSize = 64
	)
	le := binary.LittleEndian

	var note []byte
	if len(e.BuildID) > 0 {
		var n bytes.Buffer
		_ = binary.Write(&n, le, uint32(4))
		_ = binary.Write(&n, le, uint32(len(e.BuildID)))
		_ = binary.Write(&n, le, uint32(3))
		n.WriteString("GNU\x00")
		n.Write(e.BuildID)
		for n.Len()%4 != 0 {
			n.WriteByte(0)
		}
		note = n.Bytes()
	}

	phnum := len(e.Segments)
	if note != nil {
		phnum++
	}

	// File layout: header, program headers, segment contents, note,
	// section name table, section headers.
	off := uint64(ehdrSize + phdrSize*phnum)
	segOff := make([]uint64, len(e.Segments))
	for i, s := range e.Segments {
		off = (off + 0xf) &^ 0xf
		segOff[i] = off
		off += uint64(len(s.Data))
	}
	off = (off + 3) &^ 3
	noteOff := off
	off += uint64(len(note))

	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	nameOff := make([]uint32, len(e.Sections))
	for i, s := range e.Sections {
		nameOff[i] = uint32(shstrtab.Len())
		shstrtab.WriteString(s.Name)
		shstrtab.WriteByte(0)
	}
	shstrNameOff := uint32(shstrtab.Len())
	shstrtab.WriteString(".shstrtab\x00")
	shstrOff := off
	off += uint64(shstrtab.Len())
	off = (off + 7) &^ 7
	shOff := off

	typ := e.Type
	if typ == 0 {
		typ = elf.ET_DYN
	}
	machine := e.Machine
	if machine == 0 {
		machine = elf.EM_AARCH64
	}
	shnum := len(e.Sections) + 2
	hdr := elf.Header64{
		Type:      uint16(typ),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     ehdrSize,
		Shoff:     shOff,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(phnum),
		Shentsize: shdrSize,
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shnum - 1),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	if e.OmitSections {
		hdr.Shoff, hdr.Shnum, hdr.Shentsize, hdr.Shstrndx = 0, 0, 0, 0
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, le, &hdr)
	for i, s := range e.Segments {
		mem := s.MemSize
		if mem == 0 {
			mem = uint64(len(s.Data))
		}
		_ = binary.Write(&buf, le, &elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(s.Flags),
			Off:    segOff[i],
			Vaddr:  s.Vaddr,
			Paddr:  s.Vaddr,
			Filesz: uint64(len(s.Data)),
			Memsz:  mem,
			Align:  0x1000,
		})
	}
	if note != nil {
		_ = binary.Write(&buf, le, &elf.Prog64{
			Type:   uint32(elf.PT_NOTE),
			Flags:  uint32(elf.PF_R),
			Off:    noteOff,
			Filesz: uint64(len(note)),
			Memsz:  uint64(len(note)),
			Align:  4,
		})
	}
	for i, s := range e.Segments {
		pad(&buf, segOff[i])
		buf.Write(s.Data)
	}
	pad(&buf, noteOff)
	buf.Write(note)
	pad(&buf, shstrOff)
	buf.Write(shstrtab.Bytes())
	if e.OmitSections {
		return buf.Bytes()
	}
	pad(&buf, shOff)

	_ = binary.Write(&buf, le, &elf.Section64{})
	for i, s := range e.Sections {
		_ = binary.Write(&buf, le, &elf.Section64{
			Name:      nameOff[i],
			Type:      uint32(s.Type),
			Flags:     uint64(elf.SHF_ALLOC),
			Addr:      s.Addr,
			Off:       e.fileOffset(segOff, s.Addr),
			Size:      s.Size,
			Addralign: 1,
		})
	}
	_ = binary.Write(&buf, le, &elf.Section64{
		Name:      shstrNameOff,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       shstrOff,
		Size:      uint64(shstrtab.Len()),
		Addralign: 1,
	})
	return buf.Bytes()
}

// fileOffset maps a virtual address inside a segment to its file offset.
func (e *ELF) fileOffset(segOff []uint64, addr uint64) uint64 {
	for i, s := range e.Segments {
		if s.Vaddr <= addr && addr < s.Vaddr+uint64(len(s.Data)) {
			return segOff[i] + addr - s.Vaddr
		}
	}
	return 0
}

func pad(buf *bytes.Buffer, off uint64) {
	for uint64(buf.Len()) < off {
		buf.WriteByte(0)
	}
}
