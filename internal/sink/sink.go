// Package sink writes encoder output to files atomically.
//
// Output goes to a temporary file in the destination directory and is renamed
// over the destination only after the encoder succeeded, so a failed build
// never leaves a truncated image behind.
package sink

import (
	"io"
	"os"
	"path/filepath"

	"github.com/meigma/nxpack/internal/nxerr"
)

// File is a pending output file.
type File struct {
	file      *os.File
	tmpPath   string
	finalPath string
	done      bool
}

// Create opens a pending output for path.
func Create(path string) (*File, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return nil, nxerr.IO("create output", err)
	}
	return &File{
		file:      tmp,
		tmpPath:   tmp.Name(),
		finalPath: path,
	}, nil
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.file.Write(p)
	if err != nil {
		return n, nxerr.IO("write "+f.finalPath, err)
	}
	return n, nil
}

// Commit flushes the output and moves it into place.
func (f *File) Commit() error {
	if f.done {
		return nil
	}
	f.done = true
	if err := f.file.Sync(); err != nil {
		_ = f.file.Close()
		_ = os.Remove(f.tmpPath)
		return nxerr.IO("sync "+f.finalPath, err)
	}
	if err := f.file.Close(); err != nil {
		_ = os.Remove(f.tmpPath)
		return nxerr.IO("close "+f.finalPath, err)
	}
	if err := os.Chmod(f.tmpPath, 0o644); err != nil {
		_ = os.Remove(f.tmpPath)
		return nxerr.IO("chmod "+f.finalPath, err)
	}
	if err := os.Rename(f.tmpPath, f.finalPath); err != nil {
		_ = os.Remove(f.tmpPath)
		return nxerr.IO("rename "+f.finalPath, err)
	}
	return nil
}

// Discard removes the pending output. It is a no-op after Commit.
func (f *File) Discard() error {
	if f.done {
		return nil
	}
	f.done = true
	_ = f.file.Close()
	return os.Remove(f.tmpPath)
}

// WriteFile runs write against a pending output for path and commits it when
// write succeeds. On failure the destination is left untouched.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Discard()
		return err
	}
	return f.Commit()
}
