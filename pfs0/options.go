package pfs0

import (
	"log/slog"

	"github.com/meigma/nxpack/internal/progress"
	"github.com/meigma/nxpack/internal/walk"
)

// ExcludeFunc returns true when an entry should be left out of the archive.
// Excluding a sub-directory lets the rest of the directory be archived.
type ExcludeFunc = walk.ExcludeFunc

// Progress types shared with the other builders.
type (
	ProgressEvent = progress.Event
	ProgressFunc  = progress.Func
)

type config struct {
	logger   *slog.Logger
	exclude  ExcludeFunc
	progress ProgressFunc
	maxFiles int
}

// Option configures an archive build.
type Option func(*config)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithExclude sets a predicate deciding which entries to leave out.
// Excluded symlinks and special files do not cause an error.
func WithExclude(fn ExcludeFunc) Option {
	return func(cfg *config) {
		cfg.exclude = fn
	}
}

// WithMaxFiles limits the number of files included in the archive.
// Zero uses DefaultMaxFiles. Negative means no limit.
func WithMaxFiles(n int) Option {
	return func(cfg *config) {
		cfg.maxFiles = n
	}
}

// WithProgress sets a callback that receives progress updates.
func WithProgress(fn ProgressFunc) Option {
	return func(cfg *config) {
		cfg.progress = fn
	}
}
