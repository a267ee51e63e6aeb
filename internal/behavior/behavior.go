// Package behavior computes the heuristic half of the analysis pipeline:
// Shannon entropy, suspicious pattern matching, category-specific structural
// markers, and filename/size anomaly indicators. Unlike the signature table
// in sigscan, the suspicious-pattern table is regex-based; the two mechanisms
// have different false-positive characteristics and stay separate.
package behavior

import (
	"bytes"
	"math"
	"regexp"
	"strings"

	"github.com/uploadguard/uploadguard/internal/filetype"
	"github.com/uploadguard/uploadguard/internal/models"
)

const (
	// DefaultSampleSize bounds the bytes fed to entropy and pattern checks.
	DefaultSampleSize = 10 * 1024 * 1024

	entropyHighThreshold   = 7.5
	entropyMediumThreshold = 6.0

	indicatorWeight       = 10
	suspiciousScoreCutoff = 30
	maxFilenameExtensions = 2
)

// Pattern is one entry in the suspicious-pattern table.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// DefaultPatterns returns the regex table applied to every upload sample
// regardless of category.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "eval_call", Re: regexp.MustCompile(`(?i)\beval\s*\(`)},
		{Name: "base64_decode", Re: regexp.MustCompile(`(?i)base64_decode\s*\(`)},
		{Name: "document_write", Re: regexp.MustCompile(`(?i)document\.write\s*\(`)},
		{Name: "char_code_obfuscation", Re: regexp.MustCompile(`(?i)String\.fromCharCode\s*\(`)},
		{Name: "powershell_invocation", Re: regexp.MustCompile(`(?i)powershell(\.exe)?\s+-`)},
		{Name: "shell_spawn", Re: regexp.MustCompile(`(?i)(system|exec|passthru|shell_exec)\s*\(`)},
		{Name: "activex_object", Re: regexp.MustCompile(`(?i)ActiveXObject\s*\(`)},
		{Name: "wscript_shell", Re: regexp.MustCompile(`(?i)WScript\.Shell`)},
	}
}

// categoryMarkers are the per-category structural markers searched as
// case-insensitive substrings.
var categoryMarkers = map[models.FileCategory][]string{
	models.CategoryImage: {
		"<script", "javascript:", "<?php", "<%",
	},
	models.CategoryPDF: {
		"/javascript", "/js", "/embeddedfile",
	},
	models.CategoryDocument: {
		"vba", "macro", "http://", "https://",
	},
}

var safeFilenameChars = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Analyzer holds the compiled pattern tables. Built once, shared across
// requests; Analyze itself is stateless.
type Analyzer struct {
	patterns   []Pattern
	sampleSize int64
}

func New() *Analyzer {
	return &Analyzer{patterns: DefaultPatterns(), sampleSize: DefaultSampleSize}
}

func NewWithSampleSize(sampleSize int64) *Analyzer {
	a := New()
	if sampleSize > 0 {
		a.sampleSize = sampleSize
	}
	return a
}

// Analyze builds a behavioral profile from a bounded content sample plus the
// filename and size metadata.
func (a *Analyzer) Analyze(content []byte, filename string, size int64, profile *filetype.Profile) *models.BehavioralProfile {
	sample := content
	if int64(len(sample)) > a.sampleSize {
		sample = sample[:a.sampleSize]
	}

	bp := &models.BehavioralProfile{
		Entropy: ShannonEntropy(sample),
	}

	switch {
	case bp.Entropy > entropyHighThreshold:
		bp.EntropyClass = models.EntropyHighSuspicious
	case bp.Entropy > entropyMediumThreshold:
		bp.EntropyClass = models.EntropyMedium
	default:
		bp.EntropyClass = models.EntropyLowNormal
	}

	for _, p := range a.patterns {
		if p.Re.Match(sample) {
			bp.SuspiciousPatterns = append(bp.SuspiciousPatterns, p.Name)
		}
	}

	lower := bytes.ToLower(sample)
	for _, marker := range categoryMarkers[profile.Category] {
		if bytes.Contains(lower, []byte(marker)) {
			bp.EmbeddedMarkers = append(bp.EmbeddedMarkers, marker)
		}
	}

	bp.FilenameIndicators = filenameIndicators(filename)

	if size < profile.NormalMinSize || size > profile.NormalMaxSize {
		bp.SizeAnomaly = true
	}

	indicators := len(bp.FilenameIndicators)
	if bp.SizeAnomaly {
		indicators++
	}
	if bp.EntropyClass == models.EntropyHighSuspicious {
		indicators++
	}
	bp.AnomalyScore = indicators * indicatorWeight
	bp.SuspiciousBehavior = bp.AnomalyScore > suspiciousScoreCutoff

	return bp
}

func filenameIndicators(filename string) []string {
	var tags []string

	if strings.Contains(filename, "..") {
		tags = append(tags, "path_traversal_marker")
	}

	if ext := strings.Count(filename, "."); ext > maxFilenameExtensions {
		tags = append(tags, "multiple_extensions")
	}

	if filename != "" && !safeFilenameChars.MatchString(filename) {
		tags = append(tags, "unusual_characters")
	}

	return tags
}

// ShannonEntropy computes -sum(p*log2(p)) over the byte-frequency
// distribution, in bits per byte (0..8). The prior implementation of this
// check approximated log2 with integer bit lengths, which degenerates for
// probabilities below one; the 6.0/7.5 band thresholds predate this formula
// and have not been re-validated against a labeled corpus.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	total := float64(len(data))
	var entropy float64
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
