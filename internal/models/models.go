package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringArray is an alias for pq.StringArray to handle PostgreSQL arrays
type StringArray = pq.StringArray

type FileCategory string

const (
	CategoryImage    FileCategory = "image"
	CategoryPDF      FileCategory = "pdf"
	CategoryDocument FileCategory = "document"
)

func (c FileCategory) Valid() bool {
	switch c {
	case CategoryImage, CategoryPDF, CategoryDocument:
		return true
	}
	return false
}

// ThreatClassification is the verdict of the signature-based malware scan.
type ThreatClassification string

const (
	ThreatClean      ThreatClassification = "CLEAN"
	ThreatLowRisk    ThreatClassification = "LOW_RISK"
	ThreatSuspicious ThreatClassification = "SUSPICIOUS"
	ThreatMalware    ThreatClassification = "MALWARE"
	ThreatUnknown    ThreatClassification = "UNKNOWN"
)

// ThreatLevel is the aggregate risk band computed by the risk scorer.
type ThreatLevel string

const (
	LevelMinimal  ThreatLevel = "MINIMAL"
	LevelLow      ThreatLevel = "LOW"
	LevelMedium   ThreatLevel = "MEDIUM"
	LevelHigh     ThreatLevel = "HIGH"
	LevelCritical ThreatLevel = "CRITICAL"
)

type QuarantineAction string

const (
	ActionAllow      QuarantineAction = "ALLOW"
	ActionReview     QuarantineAction = "REVIEW"
	ActionQuarantine QuarantineAction = "QUARANTINE"
)

type EntropyClass string

const (
	EntropyLowNormal      EntropyClass = "LOW_ENTROPY_NORMAL"
	EntropyMedium         EntropyClass = "MEDIUM_ENTROPY"
	EntropyHighSuspicious EntropyClass = "HIGH_ENTROPY_SUSPICIOUS"
)

// ExternalScanStatus is the outcome of the optional AV engine invocation.
type ExternalScanStatus string

const (
	ExternalClean       ExternalScanStatus = "CLEAN"
	ExternalInfected    ExternalScanStatus = "INFECTED"
	ExternalError       ExternalScanStatus = "ERROR"
	ExternalUnavailable ExternalScanStatus = "NO_SCANNER_AVAILABLE"
	ExternalDisabled    ExternalScanStatus = "DISABLED"
)

// SignatureLabel classifies a byte signature in the malware table.
type SignatureLabel string

const (
	SigPEExecutable        SignatureLabel = "PE_EXECUTABLE"
	SigELFExecutable       SignatureLabel = "ELF_EXECUTABLE"
	SigMachOExecutable     SignatureLabel = "MACHO_EXECUTABLE"
	SigShellExecution      SignatureLabel = "SHELL_EXECUTION"
	SigJavaScriptInjection SignatureLabel = "JAVASCRIPT_INJECTION"
	SigPHPScript           SignatureLabel = "PHP_SCRIPT"
	SigEmbeddedArchive     SignatureLabel = "EMBEDDED_ARCHIVE"
)

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// SignatureHit is a single byte-pattern match found in upload content.
type SignatureHit struct {
	Pattern string         `json:"pattern"`
	Label   SignatureLabel `json:"label"`
	Offset  int            `json:"offset"`
}

// ScanResult is the output of the signature-based malware scanner.
type ScanResult struct {
	Signatures        []SignatureHit       `json:"signatures"`
	Classification    ThreatClassification `json:"classification"`
	BytesScanned      int64                `json:"bytes_scanned"`
	SignaturesChecked int                  `json:"signatures_checked"`
}

// BehavioralProfile is the output of the content/entropy/behavioral analyzer.
type BehavioralProfile struct {
	Entropy            float64      `json:"entropy"`
	EntropyClass       EntropyClass `json:"entropy_class"`
	SuspiciousPatterns []string     `json:"suspicious_patterns"`
	EmbeddedMarkers    []string     `json:"embedded_markers"`
	FilenameIndicators []string     `json:"filename_indicators"`
	SizeAnomaly        bool         `json:"size_anomaly"`
	AnomalyScore       int          `json:"anomaly_score"`
	SuspiciousBehavior bool         `json:"suspicious_behavior"`
}

// ExternalScanResult is the outcome of the external AV adapter.
type ExternalScanResult struct {
	Status         ExternalScanStatus `json:"status"`
	ThreatDetected bool               `json:"threat_detected"`
	Detail         string             `json:"detail,omitempty"`
	Duration       time.Duration      `json:"duration"`
}

// RiskAssessment aggregates all analysis signals into a single score.
type RiskAssessment struct {
	Score   int         `json:"score"`
	Level   ThreatLevel `json:"level"`
	Factors []string    `json:"factors"`
	Summary string      `json:"summary"`
}

// QuarantineDecision is audit metadata attached to the pipeline outcome. For
// HIGH/CRITICAL uploads the request is rejected at the boundary and this
// record exists for the review trail only.
type QuarantineDecision struct {
	Action         QuarantineAction `json:"action"`
	Reason         string           `json:"reason"`
	DurationHours  int              `json:"duration_hours"`
	ReviewRequired bool             `json:"review_required"`
}

// FileMetadata is the success bundle returned to the caller.
type FileMetadata struct {
	CorrelationID    string       `json:"correlation_id"`
	OriginalFilename string       `json:"original_filename"`
	StoredFilename   string       `json:"stored_filename"`
	StoragePath      string       `json:"storage_path"`
	SizeBytes        int64        `json:"size_bytes"`
	Category         FileCategory `json:"category"`
	Subtype          string       `json:"subtype"`
	ContentDigest    string       `json:"content_digest"`
	OwnerID          string       `json:"owner_id"`
	FolderTag        string       `json:"folder_tag"`

	MalwareScan        *ScanResult         `json:"malware_scan,omitempty"`
	BehavioralAnalysis *BehavioralProfile  `json:"behavioral_analysis,omitempty"`
	ExternalScan       *ExternalScanResult `json:"external_scan,omitempty"`
	RiskAssessment     *RiskAssessment     `json:"risk_assessment,omitempty"`
	QuarantineDecision *QuarantineDecision `json:"quarantine_decision,omitempty"`
}

type UploadStatus string

const (
	UploadAccepted UploadStatus = "accepted"
	UploadRejected UploadStatus = "rejected"
)

// UploadRecord is the persisted audit row for a pipeline invocation.
type UploadRecord struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	CorrelationID    string           `json:"correlation_id" db:"correlation_id"`
	OriginalFilename string           `json:"original_filename" db:"original_filename"`
	StoredFilename   string           `json:"stored_filename,omitempty" db:"stored_filename"`
	StoragePath      string           `json:"storage_path,omitempty" db:"storage_path"`
	Category         FileCategory     `json:"category" db:"category"`
	Subtype          string           `json:"subtype,omitempty" db:"subtype"`
	SizeBytes        int64            `json:"size_bytes" db:"size_bytes"`
	ContentDigest    string           `json:"content_digest,omitempty" db:"content_digest"`
	OwnerID          string           `json:"owner_id" db:"owner_id"`
	FolderTag        string           `json:"folder_tag" db:"folder_tag"`
	Status           UploadStatus     `json:"status" db:"status"`
	RejectKind       string           `json:"reject_kind,omitempty" db:"reject_kind"`
	RejectReason     string           `json:"reject_reason,omitempty" db:"reject_reason"`
	Classification   string           `json:"classification,omitempty" db:"classification"`
	RiskScore        int              `json:"risk_score" db:"risk_score"`
	ThreatLevel      ThreatLevel      `json:"threat_level,omitempty" db:"threat_level"`
	Action           QuarantineAction `json:"action,omitempty" db:"action"`
	ThreatFactors    StringArray      `json:"threat_factors" db:"threat_factors"`
	Analysis         JSONB            `json:"analysis,omitempty" db:"analysis"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

type QuarantineStatus string

const (
	QuarantineHeld      QuarantineStatus = "held"
	QuarantineReleased  QuarantineStatus = "released"
	QuarantineEscalated QuarantineStatus = "escalated"
)

// QuarantineEvent is the audit row created for QUARANTINE/REVIEW decisions.
type QuarantineEvent struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	UploadID      uuid.UUID        `json:"upload_id" db:"upload_id"`
	CorrelationID string           `json:"correlation_id" db:"correlation_id"`
	ThreatLevel   ThreatLevel      `json:"threat_level" db:"threat_level"`
	Action        QuarantineAction `json:"action" db:"action"`
	Reason        string           `json:"reason" db:"reason"`
	DurationHours int              `json:"duration_hours" db:"duration_hours"`
	Status        QuarantineStatus `json:"status" db:"status"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty" db:"expires_at"`
	ReleasedAt    *time.Time       `json:"released_at,omitempty" db:"released_at"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// CompareThreatLevel orders threat levels; positive means a is more severe.
func CompareThreatLevel(a, b ThreatLevel) int {
	order := map[ThreatLevel]int{
		LevelCritical: 4,
		LevelHigh:     3,
		LevelMedium:   2,
		LevelLow:      1,
		LevelMinimal:  0,
	}
	return order[a] - order[b]
}
