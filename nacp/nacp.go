// Package nacp encodes application metadata descriptors.
//
// A descriptor is a fixed 0x4000-byte record: sixteen localized {name,
// author} title slots followed by identifiers, flags, age ratings and save
// data sizes at fixed offsets. Fields a description leaves unset are zero.
package nacp

import (
	"github.com/meigma/nxpack/internal/layout"
	"github.com/meigma/nxpack/internal/nxerr"
)

// Record layout.
const (
	// Size is the size of an encoded descriptor.
	Size = 0x4000

	// LanguageCount is the number of title slots.
	LanguageCount = 16

	// NameSize and AuthorSize are the widths of the title slot strings,
	// including the NUL terminator.
	NameSize   = 0x200
	AuthorSize = 0x100

	// DisplayVersionSize is the width of the version string slot.
	DisplayVersionSize = 0x10

	// RatingCount is the number of age rating slots.
	RatingCount = 0x20

	localCommunicationCount = 8
)

// Field offsets.
const (
	offISBN                         = 0x3000
	offStartupUserAccount           = 0x3025
	offAttributeFlag                = 0x3028
	offSupportedLanguageFlag        = 0x302C
	offParentalControlFlag          = 0x3030
	offScreenshot                   = 0x3034
	offVideoCapture                 = 0x3035
	offDataLossConfirmation         = 0x3036
	offPlayLogPolicy                = 0x3037
	offPresenceGroupID              = 0x3038
	offRatingAge                    = 0x3040
	offDisplayVersion               = 0x3060
	offAddOnContentBaseID           = 0x3070
	offSaveDataOwnerID              = 0x3078
	offUserAccountSaveDataSize      = 0x3080
	offUserAccountSaveDataJournal   = 0x3088
	offDeviceSaveDataSize           = 0x3090
	offDeviceSaveDataJournal        = 0x3098
	offBcatDeliveryCacheStorageSize = 0x30A0
	offLocalCommunicationID         = 0x30B0
	offLogoType                     = 0x30F0
	offLogoHandling                 = 0x30F1
	offSeedForPseudoDeviceID        = 0x30F8
)

// Languages lists the language codes in title slot order.
var Languages = [LanguageCount]string{
	"en-US", "en-GB", "ja", "fr", "de", "es-419", "es", "it",
	"nl", "fr-CA", "pt", "ru", "ko", "zh-TW", "zh-CN", "pt-BR",
}

// RatingOrganizations lists the rating organisation keys in slot order.
var RatingOrganizations = []string{
	"cero", "grac_gcrb", "gsrmr", "esrb", "class_ind", "usk",
	"pegi", "pegi_portugal", "pegi_bbfc", "russian", "acb", "oflc",
}

// Title is one localized title slot.
type Title struct {
	Name   string
	Author string
}

// NACP is a resolved descriptor, ready to encode.
type NACP struct {
	Titles                [LanguageCount]Title
	StartupUserAccount    uint8
	AttributeFlag         uint32
	SupportedLanguageFlag uint32
	ParentalControlFlag   uint32
	Screenshot            uint8
	VideoCapture          uint8
	DataLossConfirmation  uint8
	PlayLogPolicy         uint8
	PresenceGroupID       uint64
	RatingAge             [RatingCount]uint8
	DisplayVersion        string
	AddOnContentBaseID    uint64
	SaveDataOwnerID       uint64

	UserAccountSaveDataSize        uint64
	UserAccountSaveDataJournalSize uint64
	DeviceSaveDataSize             uint64
	DeviceSaveDataJournalSize      uint64
	BcatDeliveryCacheStorageSize   uint64

	LocalCommunicationID  [localCommunicationCount]uint64
	LogoType              uint8
	LogoHandling          uint8
	SeedForPseudoDeviceID uint64
}

// Marshal serializes n to its Size-byte encoding. It fails only when a
// string does not fit its slot.
func (n *NACP) Marshal() ([]byte, error) {
	w := layout.New(Size)
	for i, t := range n.Titles {
		if err := w.FixedString(t.Name, NameSize); err != nil {
			return nil, nxerr.Validationf("%s name: %v", Languages[i], err)
		}
		if err := w.FixedString(t.Author, AuthorSize); err != nil {
			return nil, nxerr.Validationf("%s author: %v", Languages[i], err)
		}
	}

	_ = w.PadTo(offISBN)
	_ = w.PadTo(offStartupUserAccount)
	w.U8(n.StartupUserAccount)
	_ = w.PadTo(offAttributeFlag)
	w.U32(n.AttributeFlag)
	w.U32(n.SupportedLanguageFlag)
	w.U32(n.ParentalControlFlag)
	w.U8(n.Screenshot)
	w.U8(n.VideoCapture)
	w.U8(n.DataLossConfirmation)
	w.U8(n.PlayLogPolicy)
	w.U64(n.PresenceGroupID)
	_, _ = w.Write(n.RatingAge[:])
	if err := w.FixedString(n.DisplayVersion, DisplayVersionSize); err != nil {
		return nil, nxerr.Validationf("version: %v", err)
	}
	w.U64(n.AddOnContentBaseID)
	w.U64(n.SaveDataOwnerID)
	w.U64(n.UserAccountSaveDataSize)
	w.U64(n.UserAccountSaveDataJournalSize)
	w.U64(n.DeviceSaveDataSize)
	w.U64(n.DeviceSaveDataJournalSize)
	w.U64(n.BcatDeliveryCacheStorageSize)
	_ = w.PadTo(offLocalCommunicationID)
	for _, id := range n.LocalCommunicationID {
		w.U64(id)
	}
	w.U8(n.LogoType)
	w.U8(n.LogoHandling)
	_ = w.PadTo(offSeedForPseudoDeviceID)
	w.U64(n.SeedForPseudoDeviceID)
	_ = w.PadTo(Size)
	return w.Bytes(), nil
}
