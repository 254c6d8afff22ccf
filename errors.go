package nxpack

import "github.com/meigma/nxpack/internal/nxerr"

// Sentinel errors re-exported from internal/nxerr.
var (
	// ErrMalformedInput is returned when a source cannot be read or is
	// structurally invalid,
	// such as a bad ELF, icon or description.
	ErrMalformedInput = nxerr.ErrMalformedInput

	// ErrUnsupportedEntry is returned when a directory entry cannot be
	// represented by the target format.
	ErrUnsupportedEntry = nxerr.ErrUnsupportedEntry

	// ErrNameTooLong is returned when an entry name exceeds the format maximum.
	ErrNameTooLong = nxerr.ErrNameTooLong

	// ErrCapacityExceeded is returned when a record, table or input size limit
	// is exceeded.
	ErrCapacityExceeded = nxerr.ErrCapacityExceeded

	// ErrValidation is returned when a metadata field is missing or oversized.
	ErrValidation = nxerr.ErrValidation

	// ErrIO is returned when writing an output fails.
	ErrIO = nxerr.ErrIO
)

// ErrorKind returns the sentinel wrapped by err, or nil if err carries none.
func ErrorKind(err error) error {
	return nxerr.Kind(err)
}
