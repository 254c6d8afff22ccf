// Package nxerr defines the error kinds shared by every encoder.
package nxerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for encode operations. Each failure returned by an encoder
// wraps exactly one of these; use errors.Is to recover the kind.
var (
	// ErrMalformedInput is returned when a source is structurally invalid
	// or cannot be read, such as a bad ELF or an unreadable directory entry.
	ErrMalformedInput = errors.New("nxpack: malformed input")

	// ErrUnsupportedEntry is returned when a tree entry cannot be represented
	// by the target format.
	ErrUnsupportedEntry = errors.New("nxpack: unsupported entry")

	// ErrNameTooLong is returned when an entry name exceeds the format maximum.
	ErrNameTooLong = errors.New("nxpack: name too long")

	// ErrCapacityExceeded is returned when a record or table limit is exceeded.
	ErrCapacityExceeded = errors.New("nxpack: capacity exceeded")

	// ErrValidation is returned when a metadata field is missing or oversized.
	ErrValidation = errors.New("nxpack: validation failed")

	// ErrIO is returned when writing an output fails.
	ErrIO = errors.New("nxpack: i/o failure")
)

// kinds lists the sentinels in the order Kind reports them.
var kinds = []error{
	ErrMalformedInput,
	ErrUnsupportedEntry,
	ErrNameTooLong,
	ErrCapacityExceeded,
	ErrValidation,
	ErrIO,
}

// Kind returns the sentinel wrapped by err, or nil if err carries none.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Malformedf returns an ErrMalformedInput error with formatted context.
func Malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

// Unsupportedf returns an ErrUnsupportedEntry error with formatted context.
func Unsupportedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedEntry, fmt.Sprintf(format, args...))
}

// Capacityf returns an ErrCapacityExceeded error with formatted context.
func Capacityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCapacityExceeded, fmt.Sprintf(format, args...))
}

// Validationf returns an ErrValidation error with formatted context.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NameTooLong returns an ErrNameTooLong error for the named entry.
func NameTooLong(name string, limit int) error {
	return fmt.Errorf("%w: %q is %d bytes, limit %d", ErrNameTooLong, name, len(name), limit)
}

// Unreadable wraps a failure to read an input as ErrMalformedInput while
// keeping err in the chain. Errors that already carry a kind pass through.
func Unreadable(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformedInput, op, err)
}

// IO wraps err as an ErrIO failure while keeping err in the chain.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
