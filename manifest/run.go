package manifest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/nxpack"
	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/sink"
)

type runConfig struct {
	logger *slog.Logger
	jobs   int
	extra  []nxpack.Option
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) RunOption {
	return func(cfg *runConfig) {
		cfg.logger = logger
	}
}

// WithJobs sets the number of targets built at once, overriding the
// manifest's jobs field. Zero defers to the manifest, then to GOMAXPROCS.
func WithJobs(n int) RunOption {
	return func(cfg *runConfig) {
		cfg.jobs = n
	}
}

// WithBuildOptions adds options passed to every build, after the target's
// own options.
func WithBuildOptions(opts ...nxpack.Option) RunOption {
	return func(cfg *runConfig) {
		cfg.extra = append(cfg.extra, opts...)
	}
}

// Run builds every target of m. Each output is written atomically; when a
// target fails, the remaining targets are canceled and the first error is
// returned. Outputs of targets that finished stay in place.
func Run(ctx context.Context, m *Manifest, opts ...RunOption) error {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	jobs := cfg.jobs
	if jobs <= 0 {
		jobs = m.Jobs
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	log.Info("running manifest", "targets", len(m.Targets), "jobs", jobs)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)
	for i := range m.Targets {
		t := m.Targets[i]
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			buildOpts := append(t.options(), nxpack.WithLogger(cfg.logger))
			buildOpts = append(buildOpts, cfg.extra...)
			if err := Build(ctx, t, buildOpts...); err != nil {
				return fmt.Errorf("target %d (%s %s): %w", i, t.Kind, t.Output, err)
			}
			log.Info("built target", "kind", string(t.Kind), "output", t.Output)
			return nil
		})
	}
	return eg.Wait()
}

// Build builds a single target into its output path.
func Build(ctx context.Context, t Target, opts ...nxpack.Option) error {
	if err := t.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.Output), 0o755); err != nil {
		return nxerr.IO("create output directory", err)
	}
	build := builderFor(t.Kind)
	return sink.WriteFile(t.Output, func(w io.Writer) error {
		return build(ctx, t.Input, w, opts...)
	})
}

type buildFunc func(ctx context.Context, input string, w io.Writer, opts ...nxpack.Option) error

func builderFor(k Kind) buildFunc {
	switch k {
	case KindNRO:
		return nxpack.BuildNRO
	case KindNSO:
		return nxpack.BuildNSO
	case KindRomFS:
		return nxpack.BuildRomFS
	case KindNACP:
		return nxpack.BuildNACP
	default:
		return nxpack.BuildPFS0
	}
}
