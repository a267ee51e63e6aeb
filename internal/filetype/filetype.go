// Package filetype holds the per-category upload profiles and the
// magic-number content gate. Filename and declared MIME type are untrusted
// hints; only matching header bytes grant acceptance.
package filetype

import (
	"bytes"
	"fmt"

	"github.com/uploadguard/uploadguard/internal/models"
)

// HeaderSize is the number of leading bytes the verifier needs. 8 bytes cover
// every signature in the default tables.
const HeaderSize = 8

// MagicNumber maps a byte prefix to a subtype label. Entries are checked in
// order; put longer prefixes before shorter ones that share a head.
type MagicNumber struct {
	Prefix  []byte
	Subtype string
}

// Profile is the static validation policy for one file category.
type Profile struct {
	Category      models.FileCategory
	Extensions    map[string]bool
	MIMETypes     map[string]bool
	MaxSizeBytes  int64
	NormalMinSize int64
	NormalMaxSize int64
	Magic         []MagicNumber
}

// Registry resolves categories to profiles. Built once at process start;
// read-only afterward.
type Registry struct {
	profiles map[models.FileCategory]*Profile
}

func NewRegistry() *Registry {
	return &Registry{profiles: DefaultProfiles()}
}

// Limits overrides the size policy of a built-in profile.
type Limits struct {
	MaxSizeBytes  int64
	NormalMinSize int64
	NormalMaxSize int64
}

// NewRegistryWithLimits overrides size policy per category, keeping the
// built-in extension/MIME/magic tables.
func NewRegistryWithLimits(limits map[string]Limits) *Registry {
	r := NewRegistry()
	for cat, l := range limits {
		p, ok := r.profiles[models.FileCategory(cat)]
		if !ok {
			continue
		}
		if l.MaxSizeBytes > 0 {
			p.MaxSizeBytes = l.MaxSizeBytes
		}
		if l.NormalMinSize > 0 {
			p.NormalMinSize = l.NormalMinSize
		}
		if l.NormalMaxSize > 0 {
			p.NormalMaxSize = l.NormalMaxSize
		}
	}
	return r
}

func (r *Registry) Get(category models.FileCategory) (*Profile, error) {
	p, ok := r.profiles[category]
	if !ok {
		return nil, fmt.Errorf("unknown file category %q", category)
	}
	return p, nil
}

// VerifyContent matches the header bytes against the profile's magic table
// and returns the subtype label of the first match.
func VerifyContent(header []byte, p *Profile) (string, error) {
	for _, m := range p.Magic {
		if len(header) >= len(m.Prefix) && bytes.HasPrefix(header, m.Prefix) {
			return m.Subtype, nil
		}
	}
	return "", fmt.Errorf("content does not match any known %s signature", p.Category)
}

func DefaultProfiles() map[models.FileCategory]*Profile {
	return map[models.FileCategory]*Profile{
		models.CategoryImage: {
			Category: models.CategoryImage,
			Extensions: map[string]bool{
				".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
			},
			MIMETypes: map[string]bool{
				"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
			},
			MaxSizeBytes:  10 * 1024 * 1024,
			NormalMinSize: 100,
			NormalMaxSize: 10 * 1024 * 1024,
			Magic: []MagicNumber{
				{Prefix: []byte{0xFF, 0xD8, 0xFF}, Subtype: "jpeg"},
				{Prefix: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, Subtype: "png"},
				{Prefix: []byte("GIF87a"), Subtype: "gif"},
				{Prefix: []byte("GIF89a"), Subtype: "gif"},
				{Prefix: []byte("RIFF"), Subtype: "webp"},
			},
		},
		models.CategoryPDF: {
			Category: models.CategoryPDF,
			Extensions: map[string]bool{
				".pdf": true,
			},
			MIMETypes: map[string]bool{
				"application/pdf": true,
			},
			MaxSizeBytes:  25 * 1024 * 1024,
			NormalMinSize: 200,
			NormalMaxSize: 25 * 1024 * 1024,
			Magic: []MagicNumber{
				{Prefix: []byte("%PDF"), Subtype: "pdf"},
			},
		},
		models.CategoryDocument: {
			Category: models.CategoryDocument,
			Extensions: map[string]bool{
				".doc": true, ".docx": true, ".rtf": true, ".odt": true,
			},
			MIMETypes: map[string]bool{
				"application/msword": true,
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
				"application/rtf":                true,
				"application/vnd.oasis.opendocument.text": true,
			},
			MaxSizeBytes:  25 * 1024 * 1024,
			NormalMinSize: 200,
			NormalMaxSize: 25 * 1024 * 1024,
			Magic: []MagicNumber{
				// OLE2 compound document (legacy .doc)
				{Prefix: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, Subtype: "ms-office"},
				// ZIP container (.docx/.odt)
				{Prefix: []byte{0x50, 0x4B, 0x03, 0x04}, Subtype: "office-xml"},
				{Prefix: []byte(`{\rtf`), Subtype: "rtf"},
			},
		},
	}
}
