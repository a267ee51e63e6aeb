package reports

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/uploadguard/uploadguard/internal/models"
)

type stubProvider struct {
	counts     ActivityCounts
	rejections map[string]int
	levels     map[string]int
	holds      []models.QuarantineEvent
}

func (s *stubProvider) GetActivityCounts(ctx context.Context) (*ActivityCounts, error) {
	return &s.counts, nil
}

func (s *stubProvider) GetRejectionStats(ctx context.Context) (map[string]int, error) {
	return s.rejections, nil
}

func (s *stubProvider) GetThreatLevelStats(ctx context.Context) (map[string]int, error) {
	return s.levels, nil
}

func (s *stubProvider) ListQuarantineEvents(ctx context.Context, status *models.QuarantineStatus, limit int) ([]models.QuarantineEvent, error) {
	return s.holds, nil
}

func TestActivitySummaryPDF(t *testing.T) {
	expires := time.Now().Add(48 * time.Hour)
	provider := &stubProvider{
		counts: ActivityCounts{
			TotalUploads:     12,
			AcceptedUploads:  9,
			RejectedUploads:  3,
			ThreatRejections: 2,
			HeldQuarantines:  2,
			CriticalUploads:  1,
		},
		rejections: map[string]int{"policy": 1, "threat": 2},
		levels:     map[string]int{"CRITICAL": 1, "HIGH": 1},
		holds: []models.QuarantineEvent{
			{
				CorrelationID: "corr-high",
				ThreatLevel:   models.LevelHigh,
				Reason:        "external scanner verdict",
				ExpiresAt:     &expires,
			},
			{
				CorrelationID: "corr-critical",
				ThreatLevel:   models.LevelCritical,
				Reason:        "malware signatures detected",
				ExpiresAt:     &expires,
			},
		},
	}

	data, err := ActivitySummaryPDF(context.Background(), "Upload Activity Report", provider)
	if err != nil {
		t.Fatalf("ActivitySummaryPDF failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("expected PDF output")
	}

	// The holds slice is reordered in place, most severe first.
	if provider.holds[0].ThreatLevel != models.LevelCritical {
		t.Errorf("expected CRITICAL hold first, got %s", provider.holds[0].ThreatLevel)
	}
}

func TestActivitySummaryPDFNoHolds(t *testing.T) {
	provider := &stubProvider{
		counts:     ActivityCounts{TotalUploads: 1, AcceptedUploads: 1},
		rejections: map[string]int{},
		levels:     map[string]int{},
	}

	data, err := ActivitySummaryPDF(context.Background(), "Upload Activity Report", provider)
	if err != nil {
		t.Fatalf("ActivitySummaryPDF failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty PDF output")
	}
}
