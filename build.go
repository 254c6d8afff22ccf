package nxpack

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/nxpack/internal/nxerr"
	"github.com/meigma/nxpack/internal/progress"
	"github.com/meigma/nxpack/internal/source"
	"github.com/meigma/nxpack/nacp"
	"github.com/meigma/nxpack/nxo"
	"github.com/meigma/nxpack/pfs0"
	"github.com/meigma/nxpack/romfs"
)

// builder holds state for one Build call.
type builder struct {
	cfg buildConfig
}

func newBuilder(opts []Option) *builder {
	b := &builder{}
	for _, opt := range opts {
		opt(&b.cfg)
	}
	return b
}

// log returns the logger, falling back to a discard logger if nil.
func (b *builder) log() *slog.Logger {
	if b.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.cfg.logger
}

func (b *builder) report(stage progress.Stage, path string, size int) {
	b.cfg.progress.Report(progress.Event{
		Stage:      stage,
		Path:       path,
		BytesDone:  uint64(size),
		BytesTotal: uint64(size),
	})
}

func (b *builder) romfsOptions() []romfs.Option {
	return []romfs.Option{
		romfs.WithLogger(b.cfg.logger),
		romfs.WithExclude(b.cfg.exclude),
		romfs.WithMaxFiles(b.cfg.maxFiles),
		romfs.WithProgress(b.cfg.progress),
	}
}

// readInput reads an input file, undoing any zstd or gzip compression.
func (b *builder) readInput(path string) ([]byte, error) {
	data, c, err := source.ReadFile(path, b.cfg.maxInputSize)
	if err != nil {
		return nil, err
	}
	if c != source.CompressionNone {
		b.log().Debug("decompressed input", "path", path, "compression", c.String(), "size", len(data))
	}
	return data, nil
}

// extract reads and parses the ELF at path.
func (b *builder) extract(path string) (*nxo.Module, error) {
	data, err := b.readInput(path)
	if err != nil {
		return nil, err
	}
	m, err := nxo.Extract(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.log().Debug("extracted elf",
		"path", path,
		"text", len(m.Segments[nxo.Text].Data),
		"rodata", len(m.Segments[nxo.ROData].Data),
		"data", len(m.Segments[nxo.Data].Data),
		"bss", m.BssSize,
		"module_id", m.ID.String())
	return m, nil
}

// readDescription parses the description at path and encodes it.
func (b *builder) readDescription(path string) ([]byte, error) {
	data, err := b.readInput(path)
	if err != nil {
		return nil, err
	}
	d, err := nacp.Parse(data, nacp.FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out, err := nacp.Encode(d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// assets loads the bundle requested by WithIcon, WithNACP and WithRomFS.
func (b *builder) assets(ctx context.Context) (*nxo.Assets, error) {
	a := &nxo.Assets{}
	var err error
	if b.cfg.iconPath != "" {
		if a.Icon, err = b.readInput(b.cfg.iconPath); err != nil {
			return nil, err
		}
		if err := nxo.ValidateIcon(a.Icon); err != nil {
			return nil, fmt.Errorf("%s: %w", b.cfg.iconPath, err)
		}
	}
	if b.cfg.nacpPath != "" {
		if a.NACP, err = b.readDescription(b.cfg.nacpPath); err != nil {
			return nil, err
		}
	}
	if b.cfg.romfsPath != "" {
		if a.RomFS, err = romfs.Build(ctx, b.cfg.romfsPath, b.romfsOptions()...); err != nil {
			return nil, fmt.Errorf("romfs %s: %w", b.cfg.romfsPath, err)
		}
	}
	return a, nil
}

func (b *builder) write(w io.Writer, path string, image []byte) error {
	b.report(progress.StageWriting, path, len(image))
	if _, err := w.Write(image); err != nil {
		return nxerr.IO("write "+path, err)
	}
	return nil
}

// BuildNRO converts the ELF at elfPath into an NRO image and writes it to w.
// WithIcon, WithNACP and WithRomFS add an asset section.
func BuildNRO(ctx context.Context, elfPath string, w io.Writer, opts ...Option) error {
	b := newBuilder(opts)
	b.log().Info("building nro", "elf", elfPath)
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := b.extract(elfPath)
	if err != nil {
		return err
	}
	assets, err := b.assets(ctx)
	if err != nil {
		return err
	}
	image, err := nxo.EncodeNRO(m, assets)
	if err != nil {
		return fmt.Errorf("%s: %w", elfPath, err)
	}
	b.log().Debug("nro encoded",
		"size", len(image),
		"icon", len(assets.Icon),
		"nacp", len(assets.NACP),
		"romfs", len(assets.RomFS))
	return b.write(w, "nro", image)
}

// BuildNSO converts the ELF at elfPath into an NSO image and writes it to w.
func BuildNSO(ctx context.Context, elfPath string, w io.Writer, opts ...Option) error {
	b := newBuilder(opts)
	b.log().Info("building nso", "elf", elfPath)
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := b.extract(elfPath)
	if err != nil {
		return err
	}
	b.report(progress.StageCompressing, elfPath, 0)
	image, err := nxo.EncodeNSO(m)
	if err != nil {
		return fmt.Errorf("%s: %w", elfPath, err)
	}
	b.log().Debug("nso encoded", "size", len(image))
	return b.write(w, "nso", image)
}

// BuildRomFS builds a RomFS image of the tree rooted at dir and writes it to w.
func BuildRomFS(ctx context.Context, dir string, w io.Writer, opts ...Option) error {
	b := newBuilder(opts)
	image, err := romfs.Build(ctx, dir, b.romfsOptions()...)
	if err != nil {
		return err
	}
	return b.write(w, "romfs", image)
}

// BuildPFS0 packs the files directly inside dir into a PFS0 archive and
// writes it to w.
func BuildPFS0(ctx context.Context, dir string, w io.Writer, opts ...Option) error {
	b := newBuilder(opts)
	archive, err := pfs0.Build(ctx, dir,
		pfs0.WithLogger(b.cfg.logger),
		pfs0.WithExclude(b.cfg.exclude),
		pfs0.WithMaxFiles(b.cfg.maxFiles),
		pfs0.WithProgress(b.cfg.progress),
	)
	if err != nil {
		return err
	}
	return b.write(w, "pfs0", archive)
}

// BuildNACP encodes the JSON or TOML description at path into a NACP
// descriptor and writes it to w. Files ending in .toml are read as TOML.
func BuildNACP(ctx context.Context, path string, w io.Writer, opts ...Option) error {
	b := newBuilder(opts)
	b.log().Info("building nacp", "description", path)
	if err := ctx.Err(); err != nil {
		return err
	}

	descriptor, err := b.readDescription(path)
	if err != nil {
		return err
	}
	return b.write(w, "nacp", descriptor)
}
