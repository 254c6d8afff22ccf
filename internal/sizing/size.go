// Package sizing holds the overflow-checked arithmetic used while laying out
// images. Every failure is an ErrCapacityExceeded naming what overflowed.
package sizing

import (
	"errors"
	"io"
	"math"

	"github.com/meigma/nxpack/internal/nxerr"
)

// ToUint32 narrows v to a 32-bit table or header field.
func ToUint32(v uint64, what string) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, nxerr.Capacityf("%s of %#x exceeds %#x", what, v, uint64(math.MaxUint32))
	}
	return uint32(v), nil
}

// ToInt converts v to a buffer length.
func ToInt(v uint64, what string) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, nxerr.Capacityf("%s of %#x bytes cannot be buffered", what, v)
	}
	return int(v), nil
}

// Add returns a+b, failing when the sum wraps.
func Add(a, b uint64, what string) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, nxerr.Capacityf("%s overflows 64 bits", what)
	}
	return sum, nil
}

// AlignUp rounds n up to the next multiple of align, which must be a power of two.
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// ReadLimited reads all of r, failing with ErrCapacityExceeded once more
// than maxSize bytes arrive. Read errors from r are returned unwrapped so
// the caller can classify them.
func ReadLimited(r io.Reader, maxSize uint64, what string) ([]byte, error) {
	if maxSize >= math.MaxInt64 {
		return nil, nxerr.Capacityf("%s limit %#x is not addressable", what, maxSize)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(maxSize)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize {
		return nil, nxerr.Capacityf("%s exceeds %d bytes", what, maxSize)
	}
	return data, nil
}

// IsCapacity reports whether err came from one of the checks above.
func IsCapacity(err error) bool {
	return errors.Is(err, nxerr.ErrCapacityExceeded)
}
