package romfs

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

var (
	benchSinkBytes []byte
	benchSinkHash  uint32
)

func makeBenchTree(b *testing.B, dir string, dirCount, filesPerDir, fileSize int) {
	b.Helper()
	rng := rand.New(rand.NewPCG(1, uint64(fileSize)))
	data := make([]byte, fileSize)
	for d := range dirCount {
		sub := filepath.Join(dir, fmt.Sprintf("dir%03d", d))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			b.Fatal(err)
		}
		for f := range filesPerDir {
			for i := range data {
				data[i] = byte(rng.Uint32())
			}
			if err := os.WriteFile(filepath.Join(sub, fmt.Sprintf("file%04d.bin", f)), data, 0o644); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkBuild(b *testing.B) {
	cases := []struct {
		name        string
		dirCount    int
		filesPerDir int
		fileSize    int
	}{
		{name: "dirs=16/files=64/size=1k", dirCount: 16, filesPerDir: 64, fileSize: 1 << 10},
		{name: "dirs=4/files=16/size=64k", dirCount: 4, filesPerDir: 16, fileSize: 64 << 10},
	}

	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			dir := b.TempDir()
			makeBenchTree(b, dir, bc.dirCount, bc.filesPerDir, bc.fileSize)
			b.SetBytes(int64(bc.dirCount * bc.filesPerDir * bc.fileSize))

			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				img, err := Build(context.Background(), dir)
				if err != nil {
					b.Fatal(err)
				}
				benchSinkBytes = img
			}
		})
	}
}

func BenchmarkHash(b *testing.B) {
	var sink uint32
	b.ReportAllocs()
	for b.Loop() {
		sink ^= Hash(0x18, "file0001.bin")
	}
	benchSinkHash = sink
}
