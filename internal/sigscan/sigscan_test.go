package sigscan

import (
	"bytes"
	"testing"

	"github.com/uploadguard/uploadguard/internal/models"
)

func TestScanClassification(t *testing.T) {
	s := New()

	tests := []struct {
		name    string
		content []byte
		want    models.ThreatClassification
	}{
		{"clean content", []byte("just a plain text document"), models.ThreatClean},
		{"pe executable", []byte{0x4D, 0x5A, 0x90, 0x00, 0x03, 0x00}, models.ThreatMalware},
		{"elf executable", []byte{0x7F, 0x45, 0x4C, 0x46, 0x02, 0x01}, models.ThreatMalware},
		{"shell shebang", []byte("#!/bin/bash\nrm -rf /"), models.ThreatMalware},
		{"powershell invocation", []byte("powershell -enc SQBFAFgA"), models.ThreatMalware},
		{"php tag", []byte("<?php system($_GET['c']); ?>"), models.ThreatSuspicious},
		{"script tag", []byte("<script>alert(1)</script>"), models.ThreatSuspicious},
		{"zip archive only", []byte{0x50, 0x4B, 0x03, 0x04, 0x14, 0x00}, models.ThreatLowRisk},
		{"gzip archive only", []byte{0x1F, 0x8B, 0x08, 0x00}, models.ThreatLowRisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Scan(tt.content)
			if result.Classification != tt.want {
				t.Errorf("Scan classification = %s, want %s (hits: %v)",
					result.Classification, tt.want, result.Signatures)
			}
		})
	}
}

func TestScanSeverityOrdering(t *testing.T) {
	s := New()

	// MALWARE outranks SUSPICIOUS when both signature classes match.
	content := append([]byte("<script>bad()</script>"), 0x4D, 0x5A, 0x90, 0x00)
	result := s.Scan(content)
	if result.Classification != models.ThreatMalware {
		t.Errorf("mixed hits classified %s, want %s", result.Classification, models.ThreatMalware)
	}
	if len(result.Signatures) < 2 {
		t.Errorf("expected hits for both signature classes, got %v", result.Signatures)
	}
}

func TestScanEmbeddedPayload(t *testing.T) {
	s := New()

	// Payload appended after a valid-looking JPEG body must still be found.
	body := bytes.Repeat([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x11, 0x22}, 500)
	content := append(body, []byte("<?php eval($_POST['x']); ?>")...)

	result := s.Scan(content)
	if result.Classification != models.ThreatSuspicious {
		t.Fatalf("embedded payload classified %s, want %s", result.Classification, models.ThreatSuspicious)
	}

	found := false
	for _, hit := range result.Signatures {
		if hit.Label == models.SigPHPScript {
			found = true
			if hit.Offset < len(body) {
				t.Errorf("php hit offset %d inside the carrier body", hit.Offset)
			}
		}
	}
	if !found {
		t.Error("expected a PHP signature hit")
	}
}

func TestScanReportsOffsets(t *testing.T) {
	s := New()

	content := []byte("prefix javascript:void(0)")
	result := s.Scan(content)

	if len(result.Signatures) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(result.Signatures))
	}
	if got, want := result.Signatures[0].Offset, bytes.Index(content, []byte("javascript:")); got != want {
		t.Errorf("hit offset = %d, want %d", got, want)
	}
	if result.BytesScanned != int64(len(content)) {
		t.Errorf("BytesScanned = %d, want %d", result.BytesScanned, len(content))
	}
}

func TestScanEmptyContent(t *testing.T) {
	s := New()
	result := s.Scan(nil)
	if result.Classification != models.ThreatClean {
		t.Errorf("empty content classified %s, want CLEAN", result.Classification)
	}
	if len(result.Signatures) != 0 {
		t.Errorf("empty content produced hits: %v", result.Signatures)
	}
}
