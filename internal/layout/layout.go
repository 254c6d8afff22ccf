// Package layout provides the sequential output buffer shared by every encoder.
//
// A Writer accumulates a complete image in memory. Encoders emit fixed-width
// little-endian fields, pad to alignment boundaries, and patch fields whose
// values are only known after later sections are laid out. Nothing reaches the
// output sink until WriteTo, so a failed encode never produces partial output.
package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFieldTooWide is returned when a value does not fit its fixed-width slot.
var ErrFieldTooWide = errors.New("layout: value does not fit field")

var le = binary.LittleEndian

// Writer is an append-only little-endian output buffer.
type Writer struct {
	buf []byte
}

// New returns a Writer with room for sizeHint bytes.
func New(sizeHint int) *Writer {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Len returns the number of bytes emitted so far, which is also the offset of
// the next byte.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the emitted bytes. The slice aliases the buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Write implements io.Writer. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// U8 emits a byte.
func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

// U32 emits a little-endian uint32.
func (w *Writer) U32(v uint32) {
	w.buf = le.AppendUint32(w.buf, v)
}

// U64 emits a little-endian uint64.
func (w *Writer) U64(v uint64) {
	w.buf = le.AppendUint64(w.buf, v)
}

// Magic emits a four-byte format signature.
func (w *Writer) Magic(m [4]byte) {
	w.buf = append(w.buf, m[:]...)
}

// FixedBytes emits b followed by zero bytes up to width.
func (w *Writer) FixedBytes(b []byte, width int) error {
	if len(b) > width {
		return fmt.Errorf("%w: %d bytes into %d", ErrFieldTooWide, len(b), width)
	}
	w.buf = append(w.buf, b...)
	w.Pad(width - len(b))
	return nil
}

// FixedString emits s as a NUL-terminated string in a width-byte slot.
// The terminator must fit, so s may be at most width-1 bytes.
func (w *Writer) FixedString(s string, width int) error {
	if len(s) >= width {
		return fmt.Errorf("%w: %q needs %d bytes, slot is %d", ErrFieldTooWide, s, len(s)+1, width)
	}
	return w.FixedBytes([]byte(s), width)
}

// Pad emits n zero bytes.
func (w *Writer) Pad(n int) {
	if n <= 0 {
		return
	}
	w.buf = append(w.buf, make([]byte, n)...)
}

// Align pads with zeros until Len is a multiple of align.
func (w *Writer) Align(align int) {
	if align <= 1 {
		return
	}
	if rem := len(w.buf) % align; rem != 0 {
		w.Pad(align - rem)
	}
}

// PadTo pads with zeros until Len equals off.
func (w *Writer) PadTo(off int) error {
	if off < len(w.buf) {
		return fmt.Errorf("layout: pad to %#x behind cursor %#x", off, len(w.buf))
	}
	w.Pad(off - len(w.buf))
	return nil
}

// PutBytesAt overwrites len(b) bytes at off.
func (w *Writer) PutBytesAt(off int, b []byte) {
	copy(w.buf[off:], b)
}

// WriteTo writes the buffer to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.buf)
	return int64(n), err
}
