package nacp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/meigma/nxpack/internal/nxerr"
)

// Format is the syntax of a description file.
type Format uint8

// Description formats.
const (
	FormatJSON Format = iota
	FormatTOML
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatTOML:
		return "toml"
	default:
		return "unknown"
	}
}

// FormatFromPath picks a format from the file extension, ignoring a trailing
// compression suffix. Anything but ".toml" is read as JSON.
func FormatFromPath(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".zst" || ext == ".gz" {
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(path, filepath.Ext(path))))
	}
	if ext == ".toml" {
		return FormatTOML
	}
	return FormatJSON
}

// LangTitle overrides the default title for one language.
type LangTitle struct {
	Name   string `json:"name,omitempty" toml:"name"`
	Author string `json:"author,omitempty" toml:"author"`
}

// Description is the user-facing metadata source.
//
// Name and Author fill every language that has no entry in Lang. TitleID
// seeds the save data owner, presence group and local communication ids.
type Description struct {
	Name           string               `json:"name" toml:"name"`
	Author         string               `json:"author" toml:"author"`
	Version        string               `json:"version" toml:"version"`
	TitleID        string               `json:"title_id" toml:"title_id"`
	DLCBaseTitleID string               `json:"dlc_base_title_id" toml:"dlc_base_title_id"`
	Lang           map[string]LangTitle `json:"lang" toml:"lang"`
	Ratings        map[string]int       `json:"ratings" toml:"ratings"`

	PresenceGroupID    string `json:"presence_group_id" toml:"presence_group_id"`
	StartupUserAccount uint8  `json:"startup_user_account" toml:"startup_user_account"`
	Screenshot         uint8  `json:"screenshot" toml:"screenshot"`
	VideoCapture       uint8  `json:"video_capture" toml:"video_capture"`
	LogoType           uint8  `json:"logo_type" toml:"logo_type"`
	LogoHandling       uint8  `json:"logo_handling" toml:"logo_handling"`

	UserAccountSaveDataSize        uint64 `json:"user_account_save_data_size" toml:"user_account_save_data_size"`
	UserAccountSaveDataJournalSize uint64 `json:"user_account_save_data_journal_size" toml:"user_account_save_data_journal_size"`
	DeviceSaveDataSize             uint64 `json:"device_save_data_size" toml:"device_save_data_size"`
	DeviceSaveDataJournalSize      uint64 `json:"device_save_data_journal_size" toml:"device_save_data_journal_size"`
	BcatDeliveryCacheStorageSize   uint64 `json:"bcat_delivery_cache_storage_size" toml:"bcat_delivery_cache_storage_size"`
}

// Parse decodes a description. Unknown fields are rejected so that typos do
// not silently produce zero-filled fields.
func Parse(data []byte, format Format) (*Description, error) {
	var d Description
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, nxerr.Malformedf("json description: %v", err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, nxerr.Malformedf("json description: trailing data")
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &d)
		if err != nil {
			return nil, nxerr.Malformedf("toml description: %v", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, nxerr.Malformedf("toml description: unknown field %q", undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("nacp: unknown format %d", format)
	}
	return &d, nil
}

// Resolve validates d and applies defaults, returning the record to encode.
func (d *Description) Resolve() (*NACP, error) {
	n := &NACP{DisplayVersion: d.Version}

	for _, code := range slices.Sorted(maps.Keys(d.Lang)) {
		if !slices.Contains(Languages[:], code) {
			return nil, nxerr.Validationf("unknown language %q", code)
		}
	}
	for i, code := range Languages {
		t := Title{Name: d.Name, Author: d.Author}
		if o, ok := d.Lang[code]; ok {
			if o.Name != "" {
				t.Name = o.Name
			}
			if o.Author != "" {
				t.Author = o.Author
			}
		}
		if len(t.Name) >= NameSize {
			return nil, nxerr.Validationf("%s name is %d bytes, limit %d", code, len(t.Name), NameSize-1)
		}
		if len(t.Author) >= AuthorSize {
			return nil, nxerr.Validationf("%s author is %d bytes, limit %d", code, len(t.Author), AuthorSize-1)
		}
		if t.Name == "" {
			continue
		}
		n.Titles[i] = t
		n.SupportedLanguageFlag |= 1 << i
	}
	if n.SupportedLanguageFlag == 0 {
		return nil, nxerr.Validationf("no title in any language")
	}
	if len(d.Version) >= DisplayVersionSize {
		return nil, nxerr.Validationf("version is %d bytes, limit %d", len(d.Version), DisplayVersionSize-1)
	}

	for _, org := range slices.Sorted(maps.Keys(d.Ratings)) {
		age := d.Ratings[org]
		slot := slices.Index(RatingOrganizations, org)
		if slot < 0 {
			return nil, nxerr.Validationf("unknown rating organisation %q", org)
		}
		if age < 0 || age > 127 {
			return nil, nxerr.Validationf("%s rating %d outside 0..127", org, age)
		}
		n.RatingAge[slot] = uint8(age)
	}

	titleID, err := parseID("title_id", d.TitleID)
	if err != nil {
		return nil, err
	}
	n.SaveDataOwnerID = titleID
	n.PresenceGroupID = titleID
	for i := range n.LocalCommunicationID {
		n.LocalCommunicationID[i] = titleID
	}
	if titleID != 0 {
		n.AddOnContentBaseID = titleID + 0x1000
	}
	if d.DLCBaseTitleID != "" {
		if n.AddOnContentBaseID, err = parseID("dlc_base_title_id", d.DLCBaseTitleID); err != nil {
			return nil, err
		}
	}
	if d.PresenceGroupID != "" {
		if n.PresenceGroupID, err = parseID("presence_group_id", d.PresenceGroupID); err != nil {
			return nil, err
		}
	}

	n.StartupUserAccount = d.StartupUserAccount
	n.Screenshot = d.Screenshot
	n.VideoCapture = d.VideoCapture
	n.LogoType = d.LogoType
	n.LogoHandling = d.LogoHandling
	n.UserAccountSaveDataSize = d.UserAccountSaveDataSize
	n.UserAccountSaveDataJournalSize = d.UserAccountSaveDataJournalSize
	n.DeviceSaveDataSize = d.DeviceSaveDataSize
	n.DeviceSaveDataJournalSize = d.DeviceSaveDataJournalSize
	n.BcatDeliveryCacheStorageSize = d.BcatDeliveryCacheStorageSize
	return n, nil
}

// parseID parses a 16 hex digit id. An optional 0x prefix is accepted and
// an empty string is id 0.
func parseID(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(digits) != 16 {
		return 0, nxerr.Validationf("%s %q is not 16 hex digits", field, s)
	}
	id, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, nxerr.Validationf("%s %q is not 16 hex digits", field, s)
	}
	return id, nil
}

// Encode validates d and returns its Size-byte encoding.
func Encode(d *Description) ([]byte, error) {
	n, err := d.Resolve()
	if err != nil {
		return nil, err
	}
	return n.Marshal()
}

// Write encodes d and writes it to w.
func Write(w io.Writer, d *Description) error {
	b, err := Encode(d)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return nxerr.IO("write nacp", err)
	}
	return nil
}
