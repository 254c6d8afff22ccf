package nxo

import (
	"bytes"
	"image/jpeg"

	"github.com/meigma/nxpack/internal/layout"
	"github.com/meigma/nxpack/internal/nxerr"
)

// Asset section layout. Each member is addressed by an {offset, size} pair
// relative to the start of the section, so any member can be absent without
// affecting the others. Absent members are recorded as offset 0, size 0.
const (
	assetHeaderSize = 0x38

	// IconSize is the required width and height of an NRO icon.
	IconSize = 256

	// NACPSize is the size of an application metadata descriptor.
	NACPSize = 0x4000
)

var assetMagic = [4]byte{'A', 'S', 'E', 'T'}

// Assets is the optional bundle appended to an NRO image.
type Assets struct {
	Icon  []byte // JPEG, IconSize x IconSize
	NACP  []byte // NACPSize bytes
	RomFS []byte // RomFS image
}

// Empty reports whether no member is present. A nil *Assets is empty.
func (a *Assets) Empty() bool {
	return a == nil || (len(a.Icon) == 0 && len(a.NACP) == 0 && len(a.RomFS) == 0)
}

func (a *Assets) size() int {
	if a.Empty() {
		return 0
	}
	return assetHeaderSize + len(a.Icon) + len(a.NACP) + len(a.RomFS)
}

// Validate checks each present member.
func (a *Assets) Validate() error {
	if a.Empty() {
		return nil
	}
	if len(a.Icon) > 0 {
		if err := ValidateIcon(a.Icon); err != nil {
			return err
		}
	}
	if len(a.NACP) > 0 && len(a.NACP) != NACPSize {
		return nxerr.Malformedf("nacp is %#x bytes, expected %#x", len(a.NACP), NACPSize)
	}
	return nil
}

// ValidateIcon checks that data is a JPEG image of IconSize x IconSize pixels.
func ValidateIcon(data []byte) error {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nxerr.Malformedf("icon is not a jpeg: %v", err)
	}
	if cfg.Width != IconSize || cfg.Height != IconSize {
		return nxerr.Validationf("icon is %dx%d, expected %dx%d", cfg.Width, cfg.Height, IconSize, IconSize)
	}
	return nil
}

// encode appends the asset section to w.
func (a *Assets) encode(w *layout.Writer) error {
	if err := a.Validate(); err != nil {
		return err
	}

	w.Magic(assetMagic)
	w.U32(0) // version

	next := uint64(assetHeaderSize)
	for _, member := range [][]byte{a.Icon, a.NACP, a.RomFS} {
		if len(member) == 0 {
			w.U64(0)
			w.U64(0)
			continue
		}
		w.U64(next)
		w.U64(uint64(len(member)))
		next += uint64(len(member))
	}
	for _, member := range [][]byte{a.Icon, a.NACP, a.RomFS} {
		_, _ = w.Write(member)
	}
	return nil
}
