package nxpack

import (
	"log/slog"

	"github.com/meigma/nxpack/internal/walk"
)

// ExcludeFunc returns true when a directory entry should be left out of a
// RomFS image or PFS0 archive. path is slash-separated and relative to the
// input directory.
type ExcludeFunc = walk.ExcludeFunc

// DefaultMaxFiles is the default limit used when no WithMaxFiles option is set.
const DefaultMaxFiles = 200_000

// buildConfig holds configuration shared by the Build functions.
type buildConfig struct {
	logger       *slog.Logger
	progress     ProgressFunc
	exclude      ExcludeFunc
	maxFiles     int
	maxInputSize uint64

	iconPath  string
	nacpPath  string
	romfsPath string
}

// Option configures a build.
type Option func(*buildConfig)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *buildConfig) {
		cfg.logger = logger
	}
}

// WithProgress sets a callback that receives progress updates.
func WithProgress(fn ProgressFunc) Option {
	return func(cfg *buildConfig) {
		cfg.progress = fn
	}
}

// WithExclude sets a predicate deciding which directory entries to leave out
// of RomFS images and PFS0 archives, including the RomFS bundled by BuildNRO.
func WithExclude(fn ExcludeFunc) Option {
	return func(cfg *buildConfig) {
		cfg.exclude = fn
	}
}

// WithMaxFiles limits the number of files in a RomFS image or PFS0 archive.
// Zero uses DefaultMaxFiles. Negative means no limit.
func WithMaxFiles(n int) Option {
	return func(cfg *buildConfig) {
		cfg.maxFiles = n
	}
}

// WithMaxInputSize limits the decoded size of an ELF, icon or description
// input. Zero uses a 512MB default.
func WithMaxInputSize(n uint64) Option {
	return func(cfg *buildConfig) {
		cfg.maxInputSize = n
	}
}

// WithIcon bundles the JPEG at path into the NRO asset section.
// Ignored by every build but BuildNRO.
func WithIcon(path string) Option {
	return func(cfg *buildConfig) {
		cfg.iconPath = path
	}
}

// WithNACP encodes the description at path and bundles it into the NRO
// asset section. Ignored by every build but BuildNRO.
func WithNACP(path string) Option {
	return func(cfg *buildConfig) {
		cfg.nacpPath = path
	}
}

// WithRomFS builds a RomFS image of dir and bundles it into the NRO asset
// section. Ignored by every build but BuildNRO.
func WithRomFS(dir string) Option {
	return func(cfg *buildConfig) {
		cfg.romfsPath = dir
	}
}
