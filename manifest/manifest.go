// Package manifest builds several outputs described by one TOML file.
//
// A manifest lists targets, each naming an output format, its input and the
// output path:
//
//	jobs = 4
//
//	[[target]]
//	kind = "nro"
//	input = "build/app.elf"
//	output = "out/app.nro"
//	icon = "icon.jpg"
//	nacp = "app.toml"
//	romfs = "romfs"
//	exclude = [".DS_Store", "*.psd"]
//
//	[[target]]
//	kind = "nsp"
//	input = "exefs"
//	output = "out/exefs.nsp"
//
// Relative paths are resolved against the manifest's directory. Targets are
// independent and run concurrently.
package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/meigma/nxpack"
	"github.com/meigma/nxpack/internal/nxerr"
)

// DefaultFile is the manifest name looked up when none is given.
const DefaultFile = "nxpack.toml"

// Kind names an output format.
type Kind string

// Output formats.
const (
	KindNRO   Kind = "nro"
	KindNSO   Kind = "nso"
	KindPFS0  Kind = "pfs0"
	KindNSP   Kind = "nsp" // alias of pfs0
	KindRomFS Kind = "romfs"
	KindNACP  Kind = "nacp"
)

// Target is one output of a manifest.
type Target struct {
	Kind     Kind     `toml:"kind"`
	Input    string   `toml:"input"`
	Output   string   `toml:"output"`
	Icon     string   `toml:"icon"`
	NACP     string   `toml:"nacp"`
	RomFS    string   `toml:"romfs"`
	Exclude  []string `toml:"exclude"`
	MaxFiles int      `toml:"max_files"`
}

// Manifest is a parsed manifest file.
type Manifest struct {
	Jobs    int      `toml:"jobs"`
	Targets []Target `toml:"target"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nxerr.Unreadable("read manifest", err)
	}
	m, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest, resolving relative paths against
// baseDir.
func Parse(data []byte, baseDir string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, nxerr.Malformedf("manifest: %v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, nxerr.Malformedf("manifest: unknown field %q", undecoded[0].String())
	}
	for i := range m.Targets {
		m.Targets[i].resolve(baseDir)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *Target) resolve(baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	t.Kind = Kind(strings.ToLower(string(t.Kind)))
	t.Input = abs(t.Input)
	t.Output = abs(t.Output)
	t.Icon = abs(t.Icon)
	t.NACP = abs(t.NACP)
	t.RomFS = abs(t.RomFS)
}

// Validate checks that every target is complete and that no two targets
// write the same output.
func (m *Manifest) Validate() error {
	if len(m.Targets) == 0 {
		return nxerr.Validationf("manifest has no targets")
	}
	if m.Jobs < 0 {
		return nxerr.Validationf("jobs must not be negative")
	}
	outputs := make(map[string]int, len(m.Targets))
	for i, t := range m.Targets {
		if err := t.validate(); err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
		clean := filepath.Clean(t.Output)
		if prev, ok := outputs[clean]; ok {
			return nxerr.Validationf("targets %d and %d both write %s", prev, i, t.Output)
		}
		outputs[clean] = i
	}
	return nil
}

func (t *Target) validate() error {
	switch t.Kind {
	case KindNRO, KindNSO, KindPFS0, KindNSP, KindRomFS, KindNACP:
	default:
		return nxerr.Validationf("unknown kind %q", t.Kind)
	}
	if t.Input == "" {
		return nxerr.Validationf("%s target has no input", t.Kind)
	}
	if t.Output == "" {
		return nxerr.Validationf("%s target has no output", t.Kind)
	}
	if t.MaxFiles < 0 {
		return nxerr.Validationf("%s target has negative max_files %d", t.Kind, t.MaxFiles)
	}
	if t.Kind != KindNRO && (t.Icon != "" || t.NACP != "" || t.RomFS != "") {
		return nxerr.Validationf("%s target cannot bundle assets", t.Kind)
	}
	return CheckPatterns(t.Exclude)
}

// ExcludePatterns returns an ExcludeFunc that matches path.Match patterns
// against both the entry name and its path relative to the input directory.
// It returns nil for no patterns.
func ExcludePatterns(patterns []string) nxpack.ExcludeFunc {
	if len(patterns) == 0 {
		return nil
	}
	return func(p string, d fs.DirEntry) bool {
		for _, pattern := range patterns {
			if ok, _ := path.Match(pattern, d.Name()); ok {
				return true
			}
			if ok, _ := path.Match(pattern, p); ok {
				return true
			}
		}
		return false
	}
}

// CheckPatterns reports the first malformed exclude pattern.
func CheckPatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := path.Match(pattern, ""); err != nil {
			return nxerr.Validationf("exclude pattern %q: %v", pattern, err)
		}
	}
	return nil
}

// options returns the build options for t.
func (t *Target) options() []nxpack.Option {
	opts := []nxpack.Option{
		nxpack.WithExclude(ExcludePatterns(t.Exclude)),
		nxpack.WithMaxFiles(t.MaxFiles),
	}
	if t.Kind == KindNRO {
		opts = append(opts,
			nxpack.WithIcon(t.Icon),
			nxpack.WithNACP(t.NACP),
			nxpack.WithRomFS(t.RomFS),
		)
	}
	return opts
}
