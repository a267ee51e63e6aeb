package pipeline

import (
	"fmt"

	"github.com/uploadguard/uploadguard/internal/models"
)

// RejectKind partitions rejections by where in the pipeline they occur.
// Input, policy and content rejections are cheap and carry a reason safe to
// show to the uploader; threat rejections are produced after full analysis
// and carry the audit trail.
type RejectKind string

const (
	RejectInput   RejectKind = "input"
	RejectPolicy  RejectKind = "policy"
	RejectContent RejectKind = "content"
	RejectThreat  RejectKind = "threat"
)

// Rejection is the caller-facing failure of a pipeline invocation. For
// threat rejections the analysis fields are populated so the caller can
// persist the quarantine record; the upload itself was not stored.
type Rejection struct {
	Kind          RejectKind
	Reason        string
	CorrelationID string

	Scan       *models.ScanResult
	Behavioral *models.BehavioralProfile
	External   *models.ExternalScanResult
	Assessment *models.RiskAssessment
	Quarantine *models.QuarantineDecision
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("upload rejected (%s): %s", r.Kind, r.Reason)
}

// InfraError marks environment faults (filesystem, external scanner
// timeout). The wrapped detail is logged with the correlation id; only the
// correlation id should cross the caller boundary.
type InfraError struct {
	CorrelationID string
	Op            string
	Err           error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("%s: %v (correlation %s)", e.Op, e.Err, e.CorrelationID)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}
