// Package sigscan performs signature-based malware detection over the full
// upload body. Matching is plain substring containment against an ordered
// table of byte patterns; payloads can be embedded anywhere (e.g. appended
// after a valid JPEG trailer), so the whole buffer is searched, not a prefix.
package sigscan

import (
	"bytes"

	"github.com/uploadguard/uploadguard/internal/models"
)

// Signature is one entry in the malware table.
type Signature struct {
	Pattern []byte
	Label   models.SignatureLabel
}

// DefaultSignatures returns the built-in signature table. Order matters only
// for reporting; classification severity is resolved by label, not position.
func DefaultSignatures() []Signature {
	return []Signature{
		// Executable headers
		{Pattern: []byte{0x4D, 0x5A, 0x90, 0x00}, Label: models.SigPEExecutable},
		{Pattern: []byte("PE\x00\x00"), Label: models.SigPEExecutable},
		{Pattern: []byte{0x7F, 0x45, 0x4C, 0x46}, Label: models.SigELFExecutable},
		{Pattern: []byte{0xFE, 0xED, 0xFA, 0xCE}, Label: models.SigMachOExecutable},
		{Pattern: []byte{0xFE, 0xED, 0xFA, 0xCF}, Label: models.SigMachOExecutable},
		{Pattern: []byte{0xCA, 0xFE, 0xBA, 0xBE}, Label: models.SigMachOExecutable},

		// Shell execution markers
		{Pattern: []byte("#!/bin/sh"), Label: models.SigShellExecution},
		{Pattern: []byte("#!/bin/bash"), Label: models.SigShellExecution},
		{Pattern: []byte("#!/usr/bin/env"), Label: models.SigShellExecution},
		{Pattern: []byte("powershell -"), Label: models.SigShellExecution},
		{Pattern: []byte("cmd.exe /c"), Label: models.SigShellExecution},

		// Script injection markers
		{Pattern: []byte("<?php"), Label: models.SigPHPScript},
		{Pattern: []byte("<?="), Label: models.SigPHPScript},
		{Pattern: []byte("<script"), Label: models.SigJavaScriptInjection},
		{Pattern: []byte("javascript:"), Label: models.SigJavaScriptInjection},
		{Pattern: []byte("eval("), Label: models.SigJavaScriptInjection},

		// Embedded archive headers
		{Pattern: []byte{0x50, 0x4B, 0x03, 0x04}, Label: models.SigEmbeddedArchive},
		{Pattern: []byte("Rar!\x1a\x07"), Label: models.SigEmbeddedArchive},
		{Pattern: []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}, Label: models.SigEmbeddedArchive},
		{Pattern: []byte{0x1F, 0x8B, 0x08}, Label: models.SigEmbeddedArchive},
	}
}

// Scanner scans content against a fixed signature table.
type Scanner struct {
	signatures []Signature
}

func New() *Scanner {
	return &Scanner{signatures: DefaultSignatures()}
}

func NewWithSignatures(sigs []Signature) *Scanner {
	return &Scanner{signatures: sigs}
}

// malwareLabels classify as MALWARE outright; higher severity wins over any
// injection or archive hit found in the same content.
var malwareLabels = map[models.SignatureLabel]bool{
	models.SigPEExecutable:    true,
	models.SigELFExecutable:   true,
	models.SigMachOExecutable: true,
	models.SigShellExecution:  true,
}

var suspiciousLabels = map[models.SignatureLabel]bool{
	models.SigJavaScriptInjection: true,
	models.SigPHPScript:           true,
}

// Scan searches the full content buffer and classifies by the most severe
// label found: MALWARE > SUSPICIOUS > LOW_RISK > CLEAN.
func (s *Scanner) Scan(content []byte) *models.ScanResult {
	result := &models.ScanResult{
		Classification:    models.ThreatClean,
		BytesScanned:      int64(len(content)),
		SignaturesChecked: len(s.signatures),
	}

	for _, sig := range s.signatures {
		offset := bytes.Index(content, sig.Pattern)
		if offset < 0 {
			continue
		}
		result.Signatures = append(result.Signatures, models.SignatureHit{
			Pattern: printable(sig.Pattern),
			Label:   sig.Label,
			Offset:  offset,
		})
	}

	hasMalware := false
	hasSuspicious := false
	for _, hit := range result.Signatures {
		if malwareLabels[hit.Label] {
			hasMalware = true
		}
		if suspiciousLabels[hit.Label] {
			hasSuspicious = true
		}
	}

	switch {
	case hasMalware:
		result.Classification = models.ThreatMalware
	case hasSuspicious:
		result.Classification = models.ThreatSuspicious
	case len(result.Signatures) > 0:
		result.Classification = models.ThreatLowRisk
	}

	return result
}

// printable renders a byte pattern for reports: ASCII stays as-is, anything
// else becomes \xNN escapes.
func printable(pattern []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 0, len(pattern))
	for _, b := range pattern {
		if b >= 32 && b < 127 {
			out = append(out, b)
			continue
		}
		out = append(out, '\\', 'x', hex[b>>4], hex[b&0x0F])
	}
	return string(out)
}
