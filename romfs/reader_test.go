package romfs

import (
	"encoding/binary"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

// parsedImage is the tree recovered from an image by readImage.
type parsedImage struct {
	header Header
	dirs   []string          // directory paths in table order, root is ""
	files  map[string][]byte // file path to contents
}

func le32(b []byte, off uint64) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
func le64(b []byte, off uint64) uint64 { return binary.LittleEndian.Uint64(b[off:]) }

func parseHeader(t *testing.T, img []byte) Header {
	t.Helper()
	require.GreaterOrEqual(t, len(img), HeaderSize)
	require.Equal(t, uint64(HeaderSize), le64(img, 0))
	ref := func(off uint64) TableRef { return TableRef{Offset: le64(img, off), Size: le64(img, off+8)} }
	return Header{
		DirHash:   ref(0x08),
		DirMeta:   ref(0x18),
		FileHash:  ref(0x28),
		FileMeta:  ref(0x38),
		DataStart: le64(img, 0x48),
	}
}

type dirRecord struct {
	parent, sibling, childDir, childFile, hashSibling uint32
	name                                              string
}

type fileRecord struct {
	parent, sibling   uint32
	dataOff, dataSize uint64
	hashSibling       uint32
	name              string
}

func readDir(img []byte, h Header, off uint32) dirRecord {
	base := h.DirMeta.Offset + uint64(off)
	n := uint64(le32(img, base+0x14))
	return dirRecord{
		parent:      le32(img, base),
		sibling:     le32(img, base+4),
		childDir:    le32(img, base+8),
		childFile:   le32(img, base+0xC),
		hashSibling: le32(img, base+0x10),
		name:        string(img[base+dirEntrySize : base+dirEntrySize+n]),
	}
}

func readFile(img []byte, h Header, off uint32) fileRecord {
	base := h.FileMeta.Offset + uint64(off)
	n := uint64(le32(img, base+0x1C))
	return fileRecord{
		parent:      le32(img, base),
		sibling:     le32(img, base+4),
		dataOff:     le64(img, base+8),
		dataSize:    le64(img, base+0x10),
		hashSibling: le32(img, base+0x18),
		name:        string(img[base+fileEntrySize : base+fileEntrySize+n]),
	}
}

// readImage walks the tree links of img from the root directory and checks
// every entry can also be found through its hash bucket.
func readImage(t *testing.T, img []byte) parsedImage {
	t.Helper()
	h := parseHeader(t, img)
	p := parsedImage{header: h, files: map[string][]byte{}}

	type queued struct {
		off  uint32
		path string
	}
	queue := []queued{{0, ""}}
	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		p.dirs = append(p.dirs, q.path)
		d := readDir(img, h, q.off)

		for child := d.childDir; child != EmptyLink; {
			c := readDir(img, h, child)
			require.Equal(t, q.off, c.parent, "parent of %s", c.name)
			require.True(t, lookupDir(img, h, q.off, c.name, child), "dir %s in its bucket", c.name)
			queue = append(queue, queued{child, path.Join(q.path, c.name)})
			child = c.sibling
		}
		for child := d.childFile; child != EmptyLink; {
			f := readFile(img, h, child)
			require.Equal(t, q.off, f.parent, "parent of %s", f.name)
			require.Zero(t, f.dataOff%FileAlign)
			require.True(t, lookupFile(img, h, q.off, f.name, child), "file %s in its bucket", f.name)
			start := h.DataStart + f.dataOff
			p.files[path.Join(q.path, f.name)] = img[start : start+f.dataSize]
			child = f.sibling
		}
	}
	return p
}

func lookupDir(img []byte, h Header, parent uint32, name string, want uint32) bool {
	n := uint32(h.DirHash.Size / 4)
	for off := le32(img, h.DirHash.Offset+uint64(Hash(parent, name)%n)*4); off != EmptyLink; {
		if off == want {
			return true
		}
		off = readDir(img, h, off).hashSibling
	}
	return false
}

func lookupFile(img []byte, h Header, parent uint32, name string, want uint32) bool {
	n := uint32(h.FileHash.Size / 4)
	for off := le32(img, h.FileHash.Offset+uint64(Hash(parent, name)%n)*4); off != EmptyLink; {
		if off == want {
			return true
		}
		off = readFile(img, h, off).hashSibling
	}
	return false
}
