//go:build unix

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/meigma/nxpack/internal/nxerr"
)

// openEntry opens name below root for reading. O_NOFOLLOW rejects a symlink
// swapped in after the walk and O_NONBLOCK keeps a FIFO from stalling the
// open; readEntry rejects anything that is not a regular file.
func openEntry(root *os.Root, name string) (*os.File, error) {
	f, err := root.OpenFile(name, os.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK, 0)
	if errors.Is(err, unix.ELOOP) {
		return nil, nxerr.Unsupportedf("%s is a symlink", name)
	}
	return f, err
}
