// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// WriteTree creates files under dir from a map of slash-separated relative
// paths to contents. Parent directories are created as needed.
func WriteTree(tb testing.TB, dir string, files map[string]string) {
	tb.Helper()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			tb.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
	}
}

// MkdirAll creates empty directories under dir.
func MkdirAll(tb testing.TB, dir string, paths ...string) {
	tb.Helper()
	for _, path := range paths {
		if err := os.MkdirAll(filepath.Join(dir, filepath.FromSlash(path)), 0o755); err != nil {
			tb.Fatalf("mkdir %s: %v", path, err)
		}
	}
}

// Icon returns a JPEG image of the given size.
func Icon(tb testing.TB, width, height int) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		tb.Fatalf("encode icon: %v", err)
	}
	return buf.Bytes()
}
