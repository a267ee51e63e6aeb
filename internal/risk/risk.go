// Package risk aggregates scan, behavioral and external signals into a
// weighted score, a threat level and a quarantine decision.
package risk

import (
	"fmt"
	"strings"

	"github.com/uploadguard/uploadguard/internal/models"
)

// Scoring weights. The score is additive; a single hard signal (malware
// signature) is enough to cross the CRITICAL band on its own.
const (
	weightSuspiciousPattern = 10
	weightEmbeddedMarker    = 15
	weightMalware           = 100
	weightSuspiciousScan    = 50
	weightExternalThreat    = 75
)

// Threat level bands over the total score.
const (
	thresholdCritical = 100
	thresholdHigh     = 75
	thresholdMedium   = 50
	thresholdLow      = 25
)

const reviewScoreCutoff = 60

// Engine computes risk assessments and quarantine decisions.
type Engine struct {
	quarantineHours int
}

func New(quarantineHours int) *Engine {
	if quarantineHours <= 0 {
		quarantineHours = 72
	}
	return &Engine{quarantineHours: quarantineHours}
}

// Score aggregates all analysis outputs. scan and behavioral must be
// non-nil; external may be nil when external scanning is disabled.
func (e *Engine) Score(scan *models.ScanResult, behavioral *models.BehavioralProfile, external *models.ExternalScanResult) *models.RiskAssessment {
	assessment := &models.RiskAssessment{}

	if n := len(behavioral.SuspiciousPatterns); n > 0 {
		assessment.Score += n * weightSuspiciousPattern
		assessment.Factors = append(assessment.Factors,
			fmt.Sprintf("%d suspicious pattern(s): %s", n, strings.Join(behavioral.SuspiciousPatterns, ", ")))
	}

	if n := len(behavioral.EmbeddedMarkers); n > 0 {
		assessment.Score += n * weightEmbeddedMarker
		assessment.Factors = append(assessment.Factors,
			fmt.Sprintf("%d embedded content marker(s): %s", n, strings.Join(behavioral.EmbeddedMarkers, ", ")))
	}

	switch scan.Classification {
	case models.ThreatMalware:
		assessment.Score += weightMalware
		assessment.Factors = append(assessment.Factors, "malware signature detected")
	case models.ThreatSuspicious:
		assessment.Score += weightSuspiciousScan
		assessment.Factors = append(assessment.Factors, "suspicious signature detected")
	}

	if behavioral.AnomalyScore > 0 {
		assessment.Score += behavioral.AnomalyScore
		assessment.Factors = append(assessment.Factors,
			fmt.Sprintf("behavioral anomaly score %d", behavioral.AnomalyScore))
	}

	if external != nil && external.ThreatDetected {
		assessment.Score += weightExternalThreat
		assessment.Factors = append(assessment.Factors, "external scanner threat: "+external.Detail)
	}

	switch {
	case assessment.Score >= thresholdCritical:
		assessment.Level = models.LevelCritical
	case assessment.Score >= thresholdHigh:
		assessment.Level = models.LevelHigh
	case assessment.Score >= thresholdMedium:
		assessment.Level = models.LevelMedium
	case assessment.Score >= thresholdLow:
		assessment.Level = models.LevelLow
	default:
		assessment.Level = models.LevelMinimal
	}

	assessment.Summary = summarize(assessment)

	return assessment
}

// Decide maps a risk assessment to a quarantine action. CRITICAL and HIGH
// quarantine with a fixed hold; MEDIUM over the review cutoff goes to manual
// review; everything else is allowed.
func (e *Engine) Decide(assessment *models.RiskAssessment) *models.QuarantineDecision {
	switch {
	case assessment.Level == models.LevelCritical || assessment.Level == models.LevelHigh:
		return &models.QuarantineDecision{
			Action:         models.ActionQuarantine,
			Reason:         fmt.Sprintf("threat level %s (score %d)", assessment.Level, assessment.Score),
			DurationHours:  e.quarantineHours,
			ReviewRequired: true,
		}
	case assessment.Level == models.LevelMedium && assessment.Score > reviewScoreCutoff:
		return &models.QuarantineDecision{
			Action:         models.ActionReview,
			Reason:         fmt.Sprintf("elevated risk score %d requires manual review", assessment.Score),
			ReviewRequired: true,
		}
	default:
		return &models.QuarantineDecision{
			Action: models.ActionAllow,
			Reason: fmt.Sprintf("threat level %s within policy", assessment.Level),
		}
	}
}

func summarize(a *models.RiskAssessment) string {
	if len(a.Factors) == 0 {
		return fmt.Sprintf("no threat factors identified (level %s)", a.Level)
	}
	return fmt.Sprintf("score %d, level %s: %s", a.Score, a.Level, strings.Join(a.Factors, "; "))
}
