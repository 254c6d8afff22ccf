package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/meigma/nxpack"
	"github.com/meigma/nxpack/internal/sink"
	"github.com/meigma/nxpack/manifest"
)

// Environment variables supplying flag defaults.
const (
	envLogLevel     = "NXPACK_LOG_LEVEL"
	envJobs         = "NXPACK_JOBS"
	envMaxInputSize = "NXPACK_MAX_INPUT_SIZE"
)

// app holds settings shared by every subcommand.
type app struct {
	verbose      bool
	logLevel     string
	maxInputSize int
	maxFiles     int
	jobs         int

	logger *slog.Logger
}

func newApp() *app {
	return &app{}
}

func (a *app) bindFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output")
	flags.StringVar(&a.logLevel, "log-level", env.Str(envLogLevel, "warn"), "log level (debug, info, warn, error)")
	flags.IntVar(&a.maxInputSize, "max-input-size", env.Int(envMaxInputSize, 0), "maximum decoded input size in bytes (0 for the default)")
	flags.IntVar(&a.maxFiles, "max-files", 0, "maximum number of files in a RomFS or PFS0 (0 for the default, -1 for no limit)")
}

// setup installs the logger once flags are parsed.
func (a *app) setup(stderr io.Writer) error {
	level := slog.LevelWarn
	if err := level.UnmarshalText([]byte(strings.ToLower(a.logLevel))); err != nil {
		return fmt.Errorf("invalid log level %q", a.logLevel)
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	if a.maxInputSize < 0 {
		return fmt.Errorf("invalid max input size %d", a.maxInputSize)
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// options returns the build options common to every command.
func (a *app) options(extra ...nxpack.Option) []nxpack.Option {
	opts := []nxpack.Option{
		nxpack.WithLogger(a.logger),
		nxpack.WithMaxInputSize(uint64(a.maxInputSize)),
		nxpack.WithMaxFiles(a.maxFiles),
	}
	return append(opts, extra...)
}

// manifestOptions returns the options layered over each manifest target.
// --max-files only overrides a target's max_files when set.
func (a *app) manifestOptions() []nxpack.Option {
	opts := []nxpack.Option{nxpack.WithMaxInputSize(uint64(a.maxInputSize))}
	if a.maxFiles != 0 {
		opts = append(opts, nxpack.WithMaxFiles(a.maxFiles))
	}
	return opts
}

type buildFunc func(ctx context.Context, input string, w io.Writer, opts ...nxpack.Option) error

// run builds input into output through an atomic sink.
func (a *app) run(ctx context.Context, build buildFunc, input, output string, opts ...nxpack.Option) error {
	return sink.WriteFile(output, func(w io.Writer) error {
		return build(ctx, input, w, a.options(opts...)...)
	})
}

// addExclude registers an --exclude flag on cmd.
func addExclude(cmd *cobra.Command, patterns *[]string) {
	cmd.Flags().StringArrayVar(patterns, "exclude", nil, "leave out entries whose name or path matches the glob (repeatable)")
}

// excludeOption validates patterns and turns them into a build option.
func excludeOption(patterns []string) (nxpack.Option, error) {
	if err := manifest.CheckPatterns(patterns); err != nil {
		return nil, err
	}
	return nxpack.WithExclude(manifest.ExcludePatterns(patterns)), nil
}
