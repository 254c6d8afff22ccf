//go:build !unix

package platform

import (
	"os"

	"github.com/meigma/nxpack/internal/nxerr"
)

// openEntry opens name below root for reading, refusing symlinks. Without
// O_NOFOLLOW the check is a separate Lstat.
func openEntry(root *os.Root, name string) (*os.File, error) {
	info, err := root.Lstat(name)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, nxerr.Unsupportedf("%s is not a regular file (%s)", name, info.Mode().Type())
	}
	return root.Open(name)
}
