package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/uploadguard/uploadguard/internal/filetype"
	"github.com/uploadguard/uploadguard/internal/models"
	"github.com/uploadguard/uploadguard/internal/storage"
)

func newTestPipeline(t *testing.T, external ExternalScanner) (*Pipeline, string) {
	t.Helper()

	root := t.TempDir()
	paths, err := storage.NewPathBuilder(root)
	if err != nil {
		t.Fatalf("NewPathBuilder: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(filetype.NewRegistry(), paths, external, logger), root
}

func jpegContent(size int) []byte {
	content := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}
	for len(content) < size {
		content = append(content, 0x01, 0x02, 0x03, 0x04)
	}
	return content
}

// errReader fails on the first read; used to prove a stage rejects before
// the body is touched.
type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("body must not be read")
}

func TestProcessAcceptsCleanImage(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	content := jpegContent(512)
	req := &Request{
		Reader:       bytes.NewReader(content),
		Filename:     "holiday.jpg",
		DeclaredMIME: "image/jpeg",
		DeclaredSize: int64(len(content)),
		Category:     models.CategoryImage,
		OwnerID:      "user42",
		FolderTag:    "vacation",
	}

	meta, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if meta.Subtype != "jpeg" {
		t.Errorf("Subtype = %q, want jpeg", meta.Subtype)
	}
	if meta.CorrelationID == "" {
		t.Error("missing correlation id")
	}
	if meta.ContentDigest == "" {
		t.Error("missing content digest")
	}
	if meta.QuarantineDecision.Action != models.ActionAllow {
		t.Errorf("Action = %s, want ALLOW", meta.QuarantineDecision.Action)
	}
	if meta.MalwareScan.Classification != models.ThreatClean {
		t.Errorf("Classification = %s, want CLEAN", meta.MalwareScan.Classification)
	}

	saved, err := os.ReadFile(meta.StoragePath)
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if !bytes.Equal(saved, content) {
		t.Error("stored content differs from upload")
	}
}

func TestProcessQuarantinesExecutable(t *testing.T) {
	p, root := newTestPipeline(t, nil)

	content := []byte{0x4D, 0x5A, 0x90, 0x00, 0x03, 0x00, 0x00, 0x00}
	content = append(content, bytes.Repeat([]byte{0x00}, 256)...)

	req := &Request{
		Reader:       bytes.NewReader(content),
		Filename:     "malware.exe",
		DeclaredSize: int64(len(content)),
		Category:     models.CategoryDocument,
		OwnerID:      "user42",
		FolderTag:    "inbox",
	}

	_, err := p.Process(context.Background(), req)
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}

	if rejection.Kind != RejectThreat {
		t.Errorf("Kind = %s, want %s", rejection.Kind, RejectThreat)
	}
	if rejection.Scan == nil || rejection.Scan.Classification != models.ThreatMalware {
		t.Errorf("expected MALWARE classification, got %+v", rejection.Scan)
	}
	if rejection.Assessment == nil || rejection.Assessment.Level != models.LevelCritical {
		t.Errorf("expected CRITICAL level, got %+v", rejection.Assessment)
	}
	if rejection.Quarantine == nil || rejection.Quarantine.Action != models.ActionQuarantine {
		t.Errorf("expected QUARANTINE action, got %+v", rejection.Quarantine)
	}
	if rejection.Quarantine != nil && rejection.Quarantine.DurationHours != 72 {
		t.Errorf("DurationHours = %d, want 72", rejection.Quarantine.DurationHours)
	}

	assertNothingStored(t, root)
}

func TestProcessRejectsContentMismatch(t *testing.T) {
	p, root := newTestPipeline(t, nil)

	content := jpegContent(512)
	req := &Request{
		Reader:       bytes.NewReader(content),
		Filename:     "statement.pdf",
		DeclaredSize: int64(len(content)),
		Category:     models.CategoryPDF,
		OwnerID:      "user42",
		FolderTag:    "billing",
	}

	_, err := p.Process(context.Background(), req)
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rejection.Kind != RejectContent {
		t.Errorf("Kind = %s, want %s", rejection.Kind, RejectContent)
	}

	assertNothingStored(t, root)
}

func TestProcessRejectsBeforeReadingBody(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	tests := []struct {
		name     string
		req      *Request
		wantKind RejectKind
	}{
		{
			name: "traversal filename",
			req: &Request{
				Reader:       errReader{},
				Filename:     "../../etc/passwd",
				DeclaredSize: 100,
				Category:     models.CategoryImage,
				OwnerID:      "user42",
				FolderTag:    "x",
			},
			wantKind: RejectInput,
		},
		{
			name: "unknown category",
			req: &Request{
				Reader:       errReader{},
				Filename:     "photo.jpg",
				DeclaredSize: 100,
				Category:     "spreadsheet",
				OwnerID:      "user42",
				FolderTag:    "x",
			},
			wantKind: RejectInput,
		},
		{
			name: "disallowed extension",
			req: &Request{
				Reader:       errReader{},
				Filename:     "photo.tiff",
				DeclaredSize: 100,
				Category:     models.CategoryImage,
				OwnerID:      "user42",
				FolderTag:    "x",
			},
			wantKind: RejectPolicy,
		},
		{
			name: "double extension smuggling",
			req: &Request{
				Reader:       errReader{},
				Filename:     "report.exe.txt",
				DeclaredSize: 100,
				Category:     models.CategoryDocument,
				OwnerID:      "user42",
				FolderTag:    "x",
			},
			wantKind: RejectPolicy,
		},
		{
			name: "declared MIME not allowed",
			req: &Request{
				Reader:       errReader{},
				Filename:     "photo.jpg",
				DeclaredMIME: "application/x-msdownload",
				DeclaredSize: 100,
				Category:     models.CategoryImage,
				OwnerID:      "user42",
				FolderTag:    "x",
			},
			wantKind: RejectPolicy,
		},
		{
			name: "declared size over limit",
			req: &Request{
				Reader:       errReader{},
				Filename:     "photo.jpg",
				DeclaredSize: 11 * 1024 * 1024,
				Category:     models.CategoryImage,
				OwnerID:      "user42",
				FolderTag:    "x",
			},
			wantKind: RejectPolicy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), tt.req)
			var rejection *Rejection
			if !errors.As(err, &rejection) {
				t.Fatalf("expected rejection, got %v", err)
			}
			if rejection.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s (reason %q)", rejection.Kind, tt.wantKind, rejection.Reason)
			}
		})
	}
}

func TestProcessRejectsEmptyBody(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	req := &Request{
		Reader:       bytes.NewReader(nil),
		Filename:     "photo.jpg",
		DeclaredSize: 0,
		Category:     models.CategoryImage,
		OwnerID:      "user42",
		FolderTag:    "x",
	}

	_, err := p.Process(context.Background(), req)
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rejection.Kind != RejectInput {
		t.Errorf("Kind = %s, want %s", rejection.Kind, RejectInput)
	}
}

func TestProcessDangerousExtensionBenignContent(t *testing.T) {
	// A blocked extension always rejects, but the refusal carries the full
	// analysis trail even when the content itself scans clean.
	p, root := newTestPipeline(t, nil)

	content := []byte("plain configuration text, nothing hostile here")
	req := &Request{
		Reader:       bytes.NewReader(content),
		Filename:     "setup.msi",
		DeclaredSize: int64(len(content)),
		Category:     models.CategoryDocument,
		OwnerID:      "user42",
		FolderTag:    "inbox",
	}

	_, err := p.Process(context.Background(), req)
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rejection.Kind != RejectThreat {
		t.Errorf("Kind = %s, want %s", rejection.Kind, RejectThreat)
	}
	if rejection.Scan == nil || rejection.Scan.Classification != models.ThreatClean {
		t.Errorf("expected CLEAN scan on benign content, got %+v", rejection.Scan)
	}
	if rejection.Assessment == nil {
		t.Error("expected populated assessment")
	}

	assertNothingStored(t, root)
}

func TestProcessReviewBand(t *testing.T) {
	// Suspicious signature (50) plus an embedded marker (15) lands in the
	// MEDIUM band above the review cutoff: accepted, flagged for review.
	p, _ := newTestPipeline(t, nil)

	content := jpegContent(256)
	content = append(content, []byte("<?php echo 'probe'; ?>")...)

	req := &Request{
		Reader:       bytes.NewReader(content),
		Filename:     "avatar.jpg",
		DeclaredSize: int64(len(content)),
		Category:     models.CategoryImage,
		OwnerID:      "user42",
		FolderTag:    "profiles",
	}

	meta, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if meta.RiskAssessment.Level != models.LevelMedium {
		t.Errorf("Level = %s (score %d), want MEDIUM", meta.RiskAssessment.Level, meta.RiskAssessment.Score)
	}
	if meta.QuarantineDecision.Action != models.ActionReview {
		t.Errorf("Action = %s, want REVIEW", meta.QuarantineDecision.Action)
	}
	if !meta.QuarantineDecision.ReviewRequired {
		t.Error("expected ReviewRequired")
	}
}

type stubScanner struct {
	result *models.ExternalScanResult
	err    error
}

func (s *stubScanner) Scan(ctx context.Context, content []byte) (*models.ExternalScanResult, error) {
	return s.result, s.err
}

func TestProcessExternalThreatQuarantines(t *testing.T) {
	external := &stubScanner{
		result: &models.ExternalScanResult{
			Status:         models.ExternalInfected,
			ThreatDetected: true,
			Detail:         "Eicar-Test-Signature FOUND",
		},
	}
	p, root := newTestPipeline(t, external)

	content := jpegContent(512)
	req := &Request{
		Reader:       bytes.NewReader(content),
		Filename:     "holiday.jpg",
		DeclaredSize: int64(len(content)),
		Category:     models.CategoryImage,
		OwnerID:      "user42",
		FolderTag:    "vacation",
	}

	_, err := p.Process(context.Background(), req)
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rejection.Kind != RejectThreat {
		t.Errorf("Kind = %s, want %s", rejection.Kind, RejectThreat)
	}
	if rejection.Assessment.Level != models.LevelHigh {
		t.Errorf("Level = %s (score %d), want HIGH", rejection.Assessment.Level, rejection.Assessment.Score)
	}

	assertNothingStored(t, root)
}

func TestProcessExternalScanFailureIsInfraError(t *testing.T) {
	external := &stubScanner{
		result: &models.ExternalScanResult{Status: models.ExternalError},
		err:    fmt.Errorf("external scan timed out after 30s"),
	}
	p, root := newTestPipeline(t, external)

	content := jpegContent(512)
	req := &Request{
		Reader:       bytes.NewReader(content),
		Filename:     "holiday.jpg",
		DeclaredSize: int64(len(content)),
		Category:     models.CategoryImage,
		OwnerID:      "user42",
		FolderTag:    "vacation",
	}

	_, err := p.Process(context.Background(), req)
	var infra *InfraError
	if !errors.As(err, &infra) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if infra.CorrelationID == "" {
		t.Error("missing correlation id on infrastructure error")
	}

	assertNothingStored(t, root)
}

func TestProcessScannerUnavailableDegrades(t *testing.T) {
	external := &stubScanner{
		result: &models.ExternalScanResult{Status: models.ExternalUnavailable},
	}
	p, _ := newTestPipeline(t, external)

	content := jpegContent(512)
	req := &Request{
		Reader:       bytes.NewReader(content),
		Filename:     "holiday.jpg",
		DeclaredSize: int64(len(content)),
		Category:     models.CategoryImage,
		OwnerID:      "user42",
		FolderTag:    "vacation",
	}

	meta, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if meta.ExternalScan.Status != models.ExternalUnavailable {
		t.Errorf("ExternalScan.Status = %s, want %s", meta.ExternalScan.Status, models.ExternalUnavailable)
	}
	if meta.QuarantineDecision.Action != models.ActionAllow {
		t.Errorf("Action = %s, want ALLOW", meta.QuarantineDecision.Action)
	}
}

func assertNothingStored(t *testing.T, root string) {
	t.Helper()
	var files []string
	_ = walkFiles(root, &files)
	if len(files) > 0 {
		t.Errorf("rejected upload left files on disk: %v", files)
	}
}

func walkFiles(dir string, out *[]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := dir + string(os.PathSeparator) + e.Name()
		if e.IsDir() {
			if err := walkFiles(path, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, path)
	}
	return nil
}
