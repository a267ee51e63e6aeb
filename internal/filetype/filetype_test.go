package filetype

import (
	"testing"

	"github.com/uploadguard/uploadguard/internal/models"
)

func TestVerifyContent(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		name        string
		category    models.FileCategory
		header      []byte
		wantSubtype string
		wantErr     bool
	}{
		{"jpeg header", models.CategoryImage, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}, "jpeg", false},
		{"png header", models.CategoryImage, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "png", false},
		{"gif header", models.CategoryImage, []byte("GIF89a\x01\x00"), "gif", false},
		{"pdf header", models.CategoryPDF, []byte("%PDF-1.7"), "pdf", false},
		{"ole2 document", models.CategoryDocument, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "ms-office", false},
		{"docx zip container", models.CategoryDocument, []byte{0x50, 0x4B, 0x03, 0x04, 0x14, 0x00, 0x06, 0x00}, "office-xml", false},
		{"rtf document", models.CategoryDocument, []byte(`{\rtf1\an`), "rtf", false},
		{"jpeg bytes against document profile", models.CategoryDocument, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}, "", true},
		{"text against image profile", models.CategoryImage, []byte("hello wo"), "", true},
		{"truncated png", models.CategoryImage, []byte{0x89, 0x50}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := registry.Get(tt.category)
			if err != nil {
				t.Fatalf("Get(%q) error: %v", tt.category, err)
			}

			subtype, err := VerifyContent(tt.header, profile)
			if tt.wantErr {
				if err == nil {
					t.Errorf("VerifyContent expected error, got subtype %q", subtype)
				}
				return
			}
			if err != nil {
				t.Fatalf("VerifyContent unexpected error: %v", err)
			}
			if subtype != tt.wantSubtype {
				t.Errorf("VerifyContent = %q, want %q", subtype, tt.wantSubtype)
			}
		})
	}
}

func TestRegistryUnknownCategory(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Get("spreadsheet"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestNewRegistryWithLimits(t *testing.T) {
	registry := NewRegistryWithLimits(map[string]Limits{
		"image": {MaxSizeBytes: 5 * 1024 * 1024},
	})

	image, err := registry.Get(models.CategoryImage)
	if err != nil {
		t.Fatalf("Get(image) error: %v", err)
	}
	if image.MaxSizeBytes != 5*1024*1024 {
		t.Errorf("image MaxSizeBytes = %d, want %d", image.MaxSizeBytes, 5*1024*1024)
	}

	// Untouched categories keep their defaults.
	pdf, err := registry.Get(models.CategoryPDF)
	if err != nil {
		t.Fatalf("Get(pdf) error: %v", err)
	}
	if pdf.MaxSizeBytes != 25*1024*1024 {
		t.Errorf("pdf MaxSizeBytes = %d, want %d", pdf.MaxSizeBytes, 25*1024*1024)
	}
}
