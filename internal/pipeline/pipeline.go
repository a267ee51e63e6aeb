// Package pipeline runs the full upload validation chain: filename
// sanitization, extension and MIME policy, magic-number verification,
// content analysis (signatures, behavior, external scanner), risk scoring
// and the quarantine decision, then commits accepted uploads to storage.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/uploadguard/uploadguard/internal/behavior"
	"github.com/uploadguard/uploadguard/internal/filetype"
	"github.com/uploadguard/uploadguard/internal/models"
	"github.com/uploadguard/uploadguard/internal/risk"
	"github.com/uploadguard/uploadguard/internal/sanitize"
	"github.com/uploadguard/uploadguard/internal/sigscan"
	"github.com/uploadguard/uploadguard/internal/storage"
)

// ExternalScanner is the optional AV engine hook. A nil result status of
// NO_SCANNER_AVAILABLE or DISABLED degrades gracefully; a returned error is
// an infrastructure fault and fails the request.
type ExternalScanner interface {
	Scan(ctx context.Context, content []byte) (*models.ExternalScanResult, error)
}

// Request is one upload submission. Reader is consumed at most once, and
// only after every metadata gate has passed.
type Request struct {
	Reader       io.Reader
	Filename     string
	DeclaredMIME string
	DeclaredSize int64
	Category     models.FileCategory
	OwnerID      string
	FolderTag    string
}

// Pipeline wires the validation stages together. Safe for concurrent use;
// all stage tables are built once at construction.
type Pipeline struct {
	profiles *filetype.Registry
	paths    *storage.PathBuilder
	scanner  *sigscan.Scanner
	analyzer *behavior.Analyzer
	external ExternalScanner
	risk     *risk.Engine
	logger   *slog.Logger
}

type Option func(*Pipeline)

func WithAnalyzer(a *behavior.Analyzer) Option {
	return func(p *Pipeline) { p.analyzer = a }
}

func WithRiskEngine(e *risk.Engine) Option {
	return func(p *Pipeline) { p.risk = e }
}

func New(profiles *filetype.Registry, paths *storage.PathBuilder, external ExternalScanner, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		profiles: profiles,
		paths:    paths,
		scanner:  sigscan.New(),
		analyzer: behavior.New(),
		external: external,
		risk:     risk.New(0),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the chain for one upload. Stages are ordered cheapest first;
// the body is not read until every metadata gate has passed. On success the
// file is on disk and the returned bundle carries the full analysis trail.
// Failures are either a *Rejection (the upload was refused) or an
// *InfraError (the environment failed; the caller may retry).
func (p *Pipeline) Process(ctx context.Context, req *Request) (*models.FileMetadata, error) {
	cid := uuid.NewString()
	log := p.logger.With("correlation_id", cid, "filename", req.Filename, "category", req.Category)

	if !req.Category.Valid() {
		return nil, &Rejection{Kind: RejectInput, CorrelationID: cid,
			Reason: fmt.Sprintf("unknown category %q", req.Category)}
	}
	profile, err := p.profiles.Get(req.Category)
	if err != nil {
		return nil, &Rejection{Kind: RejectInput, CorrelationID: cid, Reason: err.Error()}
	}

	name, err := sanitize.Filename(req.Filename)
	if err != nil {
		log.Info("filename rejected", "error", err)
		return nil, &Rejection{Kind: RejectInput, CorrelationID: cid,
			Reason: "invalid filename: " + err.Error()}
	}

	// A dangerous final extension is not a plain policy miss: the upload is
	// treated as hostile and routed through full content analysis so the
	// refusal carries a threat classification and a quarantine record.
	ext := strings.ToLower(filepath.Ext(name))
	hostileExtension := sanitize.DangerousExtensions[ext]
	if hostileExtension {
		log.Warn("dangerous extension declared, escalating to content analysis", "extension", ext)
	} else if _, err := sanitize.ValidateExtension(name, profile.Extensions); err != nil {
		return nil, &Rejection{Kind: RejectPolicy, CorrelationID: cid, Reason: err.Error()}
	}

	if err := sanitize.CheckDoubleExtension(name); err != nil {
		return nil, &Rejection{Kind: RejectPolicy, CorrelationID: cid, Reason: err.Error()}
	}

	if !hostileExtension {
		if err := sanitize.ValidateMIME(req.DeclaredMIME, profile.MIMETypes); err != nil {
			return nil, &Rejection{Kind: RejectPolicy, CorrelationID: cid, Reason: err.Error()}
		}
	}

	if req.DeclaredSize > profile.MaxSizeBytes {
		return nil, &Rejection{Kind: RejectPolicy, CorrelationID: cid,
			Reason: fmt.Sprintf("declared size %d exceeds %s limit of %d bytes",
				req.DeclaredSize, profile.Category, profile.MaxSizeBytes)}
	}

	content, err := io.ReadAll(io.LimitReader(req.Reader, profile.MaxSizeBytes+1))
	if err != nil {
		return nil, &InfraError{CorrelationID: cid, Op: "reading upload body", Err: err}
	}
	size := int64(len(content))
	if size == 0 {
		return nil, &Rejection{Kind: RejectInput, CorrelationID: cid, Reason: "upload body is empty"}
	}
	if size > profile.MaxSizeBytes {
		return nil, &Rejection{Kind: RejectPolicy, CorrelationID: cid,
			Reason: fmt.Sprintf("upload exceeds %s limit of %d bytes", profile.Category, profile.MaxSizeBytes)}
	}

	var subtype string
	if !hostileExtension {
		header := content
		if len(header) > filetype.HeaderSize {
			header = header[:filetype.HeaderSize]
		}
		subtype, err = filetype.VerifyContent(header, profile)
		if err != nil {
			log.Info("magic number mismatch", "error", err)
			return nil, &Rejection{Kind: RejectContent, CorrelationID: cid, Reason: err.Error()}
		}
	}

	scan := p.scanner.Scan(content)
	behavioral := p.analyzer.Analyze(content, name, size, profile)

	var external *models.ExternalScanResult
	if p.external != nil {
		external, err = p.external.Scan(ctx, content)
		if err != nil {
			return nil, &InfraError{CorrelationID: cid, Op: "external scan", Err: err}
		}
	}

	assessment := p.risk.Score(scan, behavioral, external)
	decision := p.risk.Decide(assessment)

	log.Info("analysis complete",
		"classification", scan.Classification,
		"score", assessment.Score,
		"level", assessment.Level,
		"action", decision.Action)

	if decision.Action == models.ActionQuarantine {
		return nil, &Rejection{
			Kind:          RejectThreat,
			CorrelationID: cid,
			Reason:        decision.Reason,
			Scan:          scan,
			Behavioral:    behavioral,
			External:      external,
			Assessment:    assessment,
			Quarantine:    decision,
		}
	}

	if hostileExtension {
		return nil, &Rejection{
			Kind:          RejectThreat,
			CorrelationID: cid,
			Reason:        fmt.Sprintf("extension %s is blocked", ext),
			Scan:          scan,
			Behavioral:    behavioral,
			External:      external,
			Assessment:    assessment,
			Quarantine:    decision,
		}
	}

	dest, err := p.paths.Build(req.Category, req.FolderTag, req.OwnerID, ext)
	if err != nil {
		return nil, &Rejection{Kind: RejectInput, CorrelationID: cid, Reason: err.Error()}
	}
	if err := storage.Save(dest, content); err != nil {
		return nil, &InfraError{CorrelationID: cid, Op: "storing upload", Err: err}
	}

	return &models.FileMetadata{
		CorrelationID:    cid,
		OriginalFilename: name,
		StoredFilename:   dest.Filename,
		StoragePath:      dest.Absolute,
		SizeBytes:        size,
		Category:         req.Category,
		Subtype:          subtype,
		ContentDigest:    storage.ContentDigest(content),
		OwnerID:          req.OwnerID,
		FolderTag:        req.FolderTag,

		MalwareScan:        scan,
		BehavioralAnalysis: behavioral,
		ExternalScan:       external,
		RiskAssessment:     assessment,
		QuarantineDecision: decision,
	}, nil
}
