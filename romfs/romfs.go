// Package romfs builds read-only filesystem images from directory trees.
//
// An image starts with a 0x50-byte header padded to 0x200 bytes, followed by
// the directory metadata table, the file metadata table, the directory hash
// table, the file hash table and finally the file data region:
//
//	0x000  header
//	0x200  dir meta | file meta | dir buckets | file buckets | pad | data
//
// Metadata entries link to each other by their byte offset within their
// table. Every entry is also chained into a hash bucket selected by
// Hash(parentOffset, name), which lets a reader resolve a path without
// scanning whole directories.
package romfs

import "github.com/meigma/nxpack/internal/nxerr"

// Image layout constants.
const (
	// MaxNameLength is the longest entry name an image can hold.
	MaxNameLength = 0x300

	// DefaultMaxFiles is the default limit used when no WithMaxFiles option is set.
	DefaultMaxFiles = 200_000

	// HeaderSize is the size of the image header.
	HeaderSize = 0x50

	// FileAlign is the alignment of the data region and of each file in it.
	FileAlign = 0x10

	tablesOffset  = 0x200
	dirEntrySize  = 0x18
	fileEntrySize = 0x20

	// EmptyLink marks an absent sibling, child or bucket link.
	EmptyLink = 0xFFFFFFFF

	hashSeed = 123456789
)

// Hash returns the bucket hash of an entry named name whose parent directory
// sits at parent in the directory table.
func Hash(parent uint32, name string) uint32 {
	h := parent ^ hashSeed
	for i := 0; i < len(name); i++ {
		h = (h>>5 | h<<27) ^ uint32(name[i])
	}
	return h
}

// BucketCount returns the number of hash buckets used for n entries.
func BucketCount(n int) uint32 {
	switch {
	case n < 3:
		return 3
	case n < 19:
		return uint32(n | 1)
	}
	count := uint32(n)
	for !coprime(count) {
		count++
	}
	return count
}

func coprime(n uint32) bool {
	for _, p := range [...]uint32{2, 3, 5, 7, 11, 13, 17} {
		if n%p == 0 {
			return false
		}
	}
	return true
}

func checkName(name string) error {
	if len(name) > MaxNameLength {
		return nxerr.NameTooLong(name, MaxNameLength)
	}
	return nil
}

func align4(n int) int { return (n + 3) &^ 3 }

// kind discriminates arena entries.
type kind uint8

const (
	kindDir kind = iota
	kindFile
)

// entry is one node of the tree being built. Entries live in a single arena
// and refer to each other by index; the root directory is index 0 and is its
// own parent.
type entry struct {
	kind   kind
	name   string
	path   string
	parent int
	next   int // next sibling of the same kind, 0 when last

	dirs  []int // child directories, sorted by name
	files []int // child files, sorted by name

	size       uint64
	dataOffset uint64 // relative to the data region

	offset      uint32 // position in the entry's meta table
	hashSibling uint32
}

func (e *entry) metaSize() int {
	if e.kind == kindDir {
		return dirEntrySize + align4(len(e.name))
	}
	return fileEntrySize + align4(len(e.name))
}
