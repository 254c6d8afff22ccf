// Package platform reads tree entries without following symlinks, using
// whatever the operating system offers for that.
package platform

import (
	"io"
	"os"

	"github.com/meigma/nxpack/internal/nxerr"
)

// ReadEntry reads the regular file name below root, which the walk recorded
// with the given size. A symlink or special file fails with
// ErrUnsupportedEntry; a missing file, read error or size change fails with
// ErrMalformedInput.
func ReadEntry(root *os.Root, name string, size int64) ([]byte, error) {
	f, err := openEntry(root, name)
	if err != nil {
		return nil, nxerr.Unreadable("open "+name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nxerr.Unreadable("stat "+name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nxerr.Unsupportedf("%s is not a regular file (%s)", name, info.Mode().Type())
	}
	if info.Size() != size {
		return nil, nxerr.Malformedf("%s changed size during build", name)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nxerr.Unreadable("read "+name, err)
	}
	// A file still growing reads past its recorded end.
	if n, _ := f.Read(make([]byte, 1)); n > 0 {
		return nil, nxerr.Malformedf("%s changed size during build", name)
	}
	return data, nil
}
