package romfs

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path"

	"github.com/meigma/nxpack/internal/layout"
	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/progress"
	"github.com/meigma/nxpack/internal/sizing"
	"github.com/meigma/nxpack/internal/walk"
)

// Build returns the image of the tree rooted at dir.
//
// Every directory, including empty ones, and every regular file below dir is
// included. Siblings are ordered by name, so the same tree always produces
// the same image. Symlinks and special files fail with ErrUnsupportedEntry
// unless excluded.
//
// Build holds file contents and the finished image in memory.
func Build(ctx context.Context, dir string, opts ...Option) ([]byte, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nxerr.Unreadable("open "+dir, err)
	}
	defer root.Close()

	b := &builder{cfg: cfg, root: root}
	b.log().Info("building romfs", "dir", dir)

	if err := b.scan(ctx); err != nil {
		return nil, err
	}
	if err := b.assign(); err != nil {
		return nil, err
	}
	image, err := b.encode(ctx)
	if err != nil {
		return nil, err
	}

	b.log().Debug("romfs built", "dirs", len(b.dirs), "files", len(b.files), "size", len(image))
	return image, nil
}

// Write builds the image of dir and writes it to w.
func Write(ctx context.Context, dir string, w io.Writer, opts ...Option) error {
	image, err := Build(ctx, dir, opts...)
	if err != nil {
		return err
	}
	if _, err := w.Write(image); err != nil {
		return nxerr.IO("write romfs", err)
	}
	return nil
}

// builder holds state for one image build.
type builder struct {
	cfg  config
	root *os.Root

	arena []entry
	dirs  []int // meta table order
	files []int // meta table order

	dirTableSize  uint32
	fileTableSize uint32
	dataSize      uint64
}

// log returns the logger, falling back to a discard logger if nil.
func (b *builder) log() *slog.Logger {
	if b.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.cfg.logger
}

// scan walks the tree into the arena. fs.WalkDir visits each directory's
// entries in lexical order, so children are appended already sorted.
func (b *builder) scan(ctx context.Context) error {
	maxFiles := b.cfg.maxFiles
	if maxFiles == 0 {
		maxFiles = DefaultMaxFiles
	}

	b.cfg.progress.Report(progress.Event{Stage: progress.StageEnumerating})

	b.arena = []entry{{kind: kindDir, path: "."}}
	handles := map[string]int{".": 0}
	fileCount := 0

	return fs.WalkDir(b.root.FS(), ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nxerr.Unreadable("walk "+p, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." {
			return nil
		}

		e, err := walk.Resolve(p, d, b.cfg.exclude)
		if err != nil {
			return err
		}
		if e.Kind == walk.Skip {
			b.log().Debug("excluded entry", "path", p)
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := checkName(e.Name); err != nil {
			return err
		}

		parent, ok := handles[path.Dir(p)]
		if !ok {
			return nxerr.Malformedf("%s has no parent directory", p)
		}
		handle := len(b.arena)
		switch e.Kind {
		case walk.Dir:
			b.arena = append(b.arena, entry{kind: kindDir, name: e.Name, path: p, parent: parent})
			b.arena[parent].dirs = append(b.arena[parent].dirs, handle)
			handles[p] = handle
		case walk.File:
			fileCount++
			if maxFiles > 0 && fileCount > maxFiles {
				return nxerr.Capacityf("more than %d files", maxFiles)
			}
			b.arena = append(b.arena, entry{kind: kindFile, name: e.Name, path: p, parent: parent, size: uint64(e.Size)})
			b.arena[parent].files = append(b.arena[parent].files, handle)
		}
		return nil
	})
}

// assign places directories breadth-first and files in the order of their
// parent directories, then computes every table offset and data offset.
func (b *builder) assign() error {
	b.dirs = []int{0}
	for i := 0; i < len(b.dirs); i++ {
		b.dirs = append(b.dirs, b.arena[b.dirs[i]].dirs...)
	}
	for _, d := range b.dirs {
		b.files = append(b.files, b.arena[d].files...)
		link(b.arena, b.arena[d].dirs)
		link(b.arena, b.arena[d].files)
	}

	var err error
	if b.dirTableSize, err = b.placeMeta(b.dirs); err != nil {
		return err
	}
	if b.fileTableSize, err = b.placeMeta(b.files); err != nil {
		return err
	}

	var offset uint64
	for _, f := range b.files {
		e := &b.arena[f]
		offset = sizing.AlignUp(offset, FileAlign)
		e.dataOffset = offset
		next, err := sizing.Add(offset, e.size, "file data")
		if err != nil {
			return err
		}
		offset = next
	}
	b.dataSize = offset
	return nil
}

// placeMeta assigns meta table offsets to handles and returns the table size.
func (b *builder) placeMeta(handles []int) (uint32, error) {
	var size uint64
	for _, h := range handles {
		e := &b.arena[h]
		if size > math.MaxUint32-uint64(e.metaSize()) {
			return 0, nxerr.Capacityf("metadata table exceeds %#x bytes", uint64(math.MaxUint32))
		}
		e.offset = uint32(size)
		size += uint64(e.metaSize())
	}
	return uint32(size), nil
}

// chain links entries into their hash buckets. Entries are prepended in
// table order, so each chain lists later entries first.
func (b *builder) chain(handles []int) []uint32 {
	buckets := make([]uint32, BucketCount(len(handles)))
	for i := range buckets {
		buckets[i] = EmptyLink
	}
	for _, h := range handles {
		e := &b.arena[h]
		slot := Hash(b.parentOffset(e), e.name) % uint32(len(buckets))
		e.hashSibling = buckets[slot]
		buckets[slot] = e.offset
	}
	return buckets
}

func (b *builder) parentOffset(e *entry) uint32 {
	return b.arena[e.parent].offset
}

// Header describes where each table lives in an image.
type Header struct {
	DirHash   TableRef
	DirMeta   TableRef
	FileHash  TableRef
	FileMeta  TableRef
	DataStart uint64
}

// TableRef is an {offset, size} pair in the header.
type TableRef struct {
	Offset uint64
	Size   uint64
}

// Marshal serializes the header to its HeaderSize-byte encoding.
func (h *Header) Marshal() []byte {
	w := layout.New(HeaderSize)
	w.U64(HeaderSize)
	for _, t := range []TableRef{h.DirHash, h.DirMeta, h.FileHash, h.FileMeta} {
		w.U64(t.Offset)
		w.U64(t.Size)
	}
	w.U64(h.DataStart)
	return w.Bytes()
}

// encode serializes the arena.
func (b *builder) encode(ctx context.Context) ([]byte, error) {
	dirBuckets := b.chain(b.dirs)
	fileBuckets := b.chain(b.files)

	var h Header
	h.DirMeta = TableRef{Offset: tablesOffset, Size: uint64(b.dirTableSize)}
	h.FileMeta = TableRef{Offset: h.DirMeta.Offset + h.DirMeta.Size, Size: uint64(b.fileTableSize)}
	h.DirHash = TableRef{Offset: h.FileMeta.Offset + h.FileMeta.Size, Size: uint64(4 * len(dirBuckets))}
	h.FileHash = TableRef{Offset: h.DirHash.Offset + h.DirHash.Size, Size: uint64(4 * len(fileBuckets))}
	h.DataStart = sizing.AlignUp(h.FileHash.Offset+h.FileHash.Size, FileAlign)

	total, err := sizing.Add(h.DataStart, b.dataSize, "romfs image")
	if err != nil {
		return nil, err
	}
	size, err := sizing.ToInt(total, "romfs image")
	if err != nil {
		return nil, err
	}

	w := layout.New(size)
	_, _ = w.Write(h.Marshal())
	_ = w.PadTo(tablesOffset)

	for _, d := range b.dirs {
		b.writeDir(w, &b.arena[d])
	}
	for _, f := range b.files {
		b.writeFile(w, &b.arena[f])
	}
	for _, bucket := range dirBuckets {
		w.U32(bucket)
	}
	for _, bucket := range fileBuckets {
		w.U32(bucket)
	}
	_ = w.PadTo(int(h.DataStart))

	var done uint64
	for i, f := range b.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := &b.arena[f]
		data, err := walk.ReadFile(b.root, walk.Entry{Kind: walk.File, Path: e.path, Size: int64(e.size)})
		if err != nil {
			return nil, err
		}
		_ = w.PadTo(int(h.DataStart + e.dataOffset))
		_, _ = w.Write(data)
		done += e.size
		b.cfg.progress.Report(progress.Event{
			Stage:      progress.StagePacking,
			Path:       e.path,
			BytesDone:  done,
			BytesTotal: b.dataSize,
			FilesDone:  i + 1,
			FilesTotal: len(b.files),
		})
	}
	return w.Bytes(), nil
}

func (b *builder) writeDir(w *layout.Writer, e *entry) {
	w.U32(b.parentOffset(e))
	w.U32(b.siblingOffset(e))
	w.U32(b.firstOffset(e.dirs))
	w.U32(b.firstOffset(e.files))
	w.U32(e.hashSibling)
	w.U32(uint32(len(e.name)))
	writeName(w, e.name)
}

func (b *builder) writeFile(w *layout.Writer, e *entry) {
	w.U32(b.parentOffset(e))
	w.U32(b.siblingOffset(e))
	w.U64(e.dataOffset)
	w.U64(e.size)
	w.U32(e.hashSibling)
	w.U32(uint32(len(e.name)))
	writeName(w, e.name)
}

func writeName(w *layout.Writer, name string) {
	_, _ = w.Write([]byte(name))
	w.Pad(align4(len(name)) - len(name))
}

// link points each sibling at the one after it.
func link(arena []entry, siblings []int) {
	for i, h := range siblings {
		if i+1 < len(siblings) {
			arena[h].next = siblings[i+1]
		}
	}
}

// siblingOffset returns the offset of the next entry of the same kind in the
// same directory.
func (b *builder) siblingOffset(e *entry) uint32 {
	if e.next == 0 {
		return EmptyLink
	}
	return b.arena[e.next].offset
}

func (b *builder) firstOffset(handles []int) uint32 {
	if len(handles) == 0 {
		return EmptyLink
	}
	return b.arena[handles[0]].offset
}
