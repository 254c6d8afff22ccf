package nxo

import (
	"bytes"
	"testing"

	"github.com/meigma/nxpack/internal/testutil"
)

var benchSinkBytes []byte

func BenchmarkEncodeNSO(b *testing.B) {
	text := bytes.Repeat([]byte{0x1f, 0x20, 0x03, 0xd5, 0xfd, 0x7b, 0xbf, 0xa9}, 0x20000)
	rodata := bytes.Repeat([]byte("string table entry\x00"), 0x2000)
	m, err := Extract(testutil.ThreeSegmentELF(text, rodata, make([]byte, 0x4000), 0x10000).Bytes())
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(text) + len(rodata) + 0x4000))

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		img, err := EncodeNSO(m)
		if err != nil {
			b.Fatal(err)
		}
		benchSinkBytes = img
	}
}
