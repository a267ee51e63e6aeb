// Package clamav shells out to a ClamAV-compatible scanner binary. External
// scanning is additive: when the binary is missing the pipeline proceeds with
// a NO_SCANNER_AVAILABLE result instead of failing the request.
package clamav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/uploadguard/uploadguard/internal/models"
)

type Config struct {
	Enabled      bool
	Binary       string
	ProbeTimeout time.Duration
	ScanTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Binary:       "clamscan",
		ProbeTimeout: 5 * time.Second,
		ScanTimeout:  30 * time.Second,
	}
}

type Scanner struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Scanner {
	if cfg.Binary == "" {
		cfg.Binary = "clamscan"
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// Available probes the scanner binary with a short version check.
func (s *Scanner) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	return exec.CommandContext(probeCtx, s.cfg.Binary, "--version").Run() == nil
}

// Scan writes content to a scoped temporary file and invokes the scanner.
// Exit 0 maps to CLEAN, exit 1 to INFECTED, anything else to ERROR. A scan
// timeout is an infrastructure error, never a silent CLEAN. The temp file is
// removed on every exit path.
func (s *Scanner) Scan(ctx context.Context, content []byte) (*models.ExternalScanResult, error) {
	start := time.Now()

	if !s.cfg.Enabled {
		return &models.ExternalScanResult{Status: models.ExternalDisabled}, nil
	}

	if !s.Available(ctx) {
		s.logger.Info("external scanner unavailable, skipping", "binary", s.cfg.Binary)
		return &models.ExternalScanResult{Status: models.ExternalUnavailable}, nil
	}

	tmp, err := os.CreateTemp("", "uploadscan-*")
	if err != nil {
		return &models.ExternalScanResult{Status: models.ExternalError},
			fmt.Errorf("creating scan temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return &models.ExternalScanResult{Status: models.ExternalError},
			fmt.Errorf("writing scan temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return &models.ExternalScanResult{Status: models.ExternalError},
			fmt.Errorf("closing scan temp file: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(scanCtx, s.cfg.Binary, "--no-summary", tmpPath)
	cmd.Stdout = &stdout

	err = cmd.Run()
	duration := time.Since(start)

	if scanCtx.Err() == context.DeadlineExceeded {
		return &models.ExternalScanResult{Status: models.ExternalError, Duration: duration},
			fmt.Errorf("external scan timed out after %s", s.cfg.ScanTimeout)
	}

	if err == nil {
		return &models.ExternalScanResult{Status: models.ExternalClean, Duration: duration}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return &models.ExternalScanResult{
			Status:         models.ExternalInfected,
			ThreatDetected: true,
			Detail:         strings.TrimSpace(stdout.String()),
			Duration:       duration,
		}, nil
	}

	return &models.ExternalScanResult{Status: models.ExternalError, Duration: duration},
		fmt.Errorf("external scan failed: %w", err)
}
