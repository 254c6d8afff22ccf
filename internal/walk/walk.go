// Package walk classifies directory entries for the tree builders.
package walk

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/platform"
)

// ExcludeFunc returns true when an entry should be left out of an image.
// path is slash-separated and relative to the input directory. Excluding a
// directory skips everything below it.
type ExcludeFunc func(path string, d fs.DirEntry) bool

// Kind classifies an entry that survived Resolve.
type Kind uint8

// Entry kinds.
const (
	Skip Kind = iota
	Dir
	File
)

// Entry is a resolved directory entry.
type Entry struct {
	Kind Kind
	Path string
	Name string
	Size int64
}

// Resolve classifies d. Excluded entries resolve to Skip. Symlinks and
// anything that is neither a directory nor a regular file fail with
// ErrUnsupportedEntry.
func Resolve(path string, d fs.DirEntry, exclude ExcludeFunc) (Entry, error) {
	if exclude != nil && exclude(path, d) {
		return Entry{Kind: Skip, Path: path}, nil
	}

	mode := d.Type()
	switch {
	case mode&fs.ModeSymlink != 0:
		return Entry{}, nxerr.Unsupportedf("%s is a symlink", path)
	case mode.IsDir():
		return Entry{Kind: Dir, Path: path, Name: d.Name()}, nil
	case mode.IsRegular():
		info, err := d.Info()
		if err != nil {
			return Entry{}, nxerr.Unreadable("stat "+path, err)
		}
		return Entry{Kind: File, Path: path, Name: d.Name(), Size: info.Size()}, nil
	default:
		return Entry{}, nxerr.Unsupportedf("%s is not a regular file (%s)", path, mode)
	}
}

// ReadFile reads a file found by Resolve and checks it still has the size
// recorded during the walk.
func ReadFile(root *os.Root, e Entry) ([]byte, error) {
	return platform.ReadEntry(root, filepath.FromSlash(e.Path), e.Size)
}
