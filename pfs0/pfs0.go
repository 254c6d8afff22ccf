// Package pfs0 builds flat partition archives from the files of a directory.
//
// An archive is a 0x10-byte header, one 0x18-byte record per file, a string
// table of NUL-terminated names and the file data:
//
//	"PFS0" | count u32 | string table size u32 | reserved u32
//	{data offset u64, size u64, name offset u32, reserved u32} * count
//	names, zero padded so the data region starts on a 0x20 boundary
//	data, each file starting on a 0x20 boundary
//
// Data offsets are relative to the data region, name offsets to the string
// table.
package pfs0

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"github.com/meigma/nxpack/internal/layout"
	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/progress"
	"github.com/meigma/nxpack/internal/sizing"
	"github.com/meigma/nxpack/internal/walk"
)

const (
	// HeaderSize is the size of the archive header.
	HeaderSize = 0x10

	// EntrySize is the size of one file record.
	EntrySize = 0x18

	// Align is the alignment of the data region and of each file in it.
	Align = 0x20

	// DefaultMaxFiles is the default limit used when no WithMaxFiles option is set.
	DefaultMaxFiles = 200_000
)

var magic = [4]byte{'P', 'F', 'S', '0'}

// Entry is one file record of an archive.
type Entry struct {
	Name       string
	DataOffset uint64
	Size       uint64
	NameOffset uint32
}

// Header is the archive header plus the file table and string table sizes.
type Header struct {
	Entries         []Entry
	StringTableSize uint32
}

// DataStart returns the offset of the data region.
func (h *Header) DataStart() uint64 {
	return HeaderSize + EntrySize*uint64(len(h.Entries)) + uint64(h.StringTableSize)
}

// Marshal serializes the header, file table and string table.
func (h *Header) Marshal() []byte {
	w := layout.New(int(h.DataStart()))
	w.Magic(magic)
	w.U32(uint32(len(h.Entries)))
	w.U32(h.StringTableSize)
	w.U32(0)
	for _, e := range h.Entries {
		w.U64(e.DataOffset)
		w.U64(e.Size)
		w.U32(e.NameOffset)
		w.U32(0)
	}
	tableStart := w.Len()
	for _, e := range h.Entries {
		_ = w.PadTo(tableStart + int(e.NameOffset))
		_, _ = w.Write([]byte(e.Name))
		w.U8(0)
	}
	_ = w.PadTo(tableStart + int(h.StringTableSize))
	return w.Bytes()
}

// plan lays out entries and returns the header describing them.
func plan(entries []walk.Entry) (*Header, error) {
	h := &Header{Entries: make([]Entry, 0, len(entries))}

	var names, data uint64
	for _, e := range entries {
		data = sizing.AlignUp(data, Align)
		h.Entries = append(h.Entries, Entry{
			Name:       e.Name,
			DataOffset: data,
			Size:       uint64(e.Size),
			NameOffset: uint32(names),
		})
		names += uint64(len(e.Name)) + 1
		if names > math.MaxUint32 {
			return nil, nxerr.Capacityf("string table exceeds %#x bytes", uint64(math.MaxUint32))
		}
		next, err := sizing.Add(data, uint64(e.Size), "archive data")
		if err != nil {
			return nil, err
		}
		data = next
	}

	tablesEnd := HeaderSize + EntrySize*uint64(len(entries)) + names
	padded := sizing.AlignUp(tablesEnd, Align) - HeaderSize - EntrySize*uint64(len(entries))
	size, err := sizing.ToUint32(padded, "string table")
	if err != nil {
		return nil, err
	}
	h.StringTableSize = size
	return h, nil
}

// Build returns the archive of the regular files directly inside dir, in
// name order. Sub-directories, symlinks and special files fail with
// ErrUnsupportedEntry unless excluded.
func Build(ctx context.Context, dir string, opts ...Option) ([]byte, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nxerr.Unreadable("open "+dir, err)
	}
	defer root.Close()

	log.Info("building pfs0", "dir", dir)
	entries, err := scan(ctx, root, cfg)
	if err != nil {
		return nil, err
	}
	h, err := plan(entries)
	if err != nil {
		return nil, err
	}

	var dataSize uint64
	if n := len(h.Entries); n > 0 {
		dataSize = h.Entries[n-1].DataOffset + h.Entries[n-1].Size
	}
	size, err := sizing.ToInt(h.DataStart()+dataSize, "archive")
	if err != nil {
		return nil, err
	}

	w := layout.New(size)
	_, _ = w.Write(h.Marshal())
	start := w.Len()
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := walk.ReadFile(root, e)
		if err != nil {
			return nil, err
		}
		_ = w.PadTo(start + int(h.Entries[i].DataOffset))
		_, _ = w.Write(data)
		cfg.progress.Report(progress.Event{
			Stage:      progress.StagePacking,
			Path:       e.Path,
			BytesDone:  h.Entries[i].DataOffset + h.Entries[i].Size,
			BytesTotal: dataSize,
			FilesDone:  i + 1,
			FilesTotal: len(entries),
		})
	}

	log.Debug("pfs0 built", "files", len(entries), "size", w.Len())
	return w.Bytes(), nil
}

// Write builds the archive of dir and writes it to w.
func Write(ctx context.Context, dir string, w io.Writer, opts ...Option) error {
	archive, err := Build(ctx, dir, opts...)
	if err != nil {
		return err
	}
	if _, err := w.Write(archive); err != nil {
		return nxerr.IO("write pfs0", err)
	}
	return nil
}

// scan lists the files directly inside root. fs.ReadDir returns entries
// sorted by name.
func scan(ctx context.Context, root *os.Root, cfg config) ([]walk.Entry, error) {
	maxFiles := cfg.maxFiles
	if maxFiles == 0 {
		maxFiles = DefaultMaxFiles
	}

	cfg.progress.Report(progress.Event{Stage: progress.StageEnumerating})
	dirEntries, err := fs.ReadDir(root.FS(), ".")
	if err != nil {
		return nil, nxerr.Unreadable("read directory", err)
	}

	var entries []walk.Entry
	for _, d := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := walk.Resolve(d.Name(), d, cfg.exclude)
		if err != nil {
			return nil, err
		}
		switch e.Kind {
		case walk.Skip:
			continue
		case walk.Dir:
			return nil, nxerr.Unsupportedf("%s is a directory", e.Path)
		}
		if maxFiles > 0 && len(entries) >= maxFiles {
			return nil, nxerr.Capacityf("more than %d files", maxFiles)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
