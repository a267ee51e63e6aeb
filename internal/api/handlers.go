package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/uploadguard/uploadguard/internal/models"
	"github.com/uploadguard/uploadguard/internal/pipeline"
	"github.com/uploadguard/uploadguard/internal/queue"
	"github.com/uploadguard/uploadguard/internal/reports"
	"github.com/uploadguard/uploadguard/internal/store"
)

const maxMultipartMemory = 32 << 20

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_multipart", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_file", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ownerID := r.FormValue("owner_id")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "missing_owner", "owner_id is required")
		return
	}

	req := &pipeline.Request{
		Reader:       file,
		Filename:     header.Filename,
		DeclaredMIME: header.Header.Get("Content-Type"),
		DeclaredSize: header.Size,
		Category:     models.FileCategory(r.FormValue("category")),
		OwnerID:      ownerID,
		FolderTag:    r.FormValue("folder_tag"),
	}

	meta, err := s.pipeline.Process(r.Context(), req)
	if err != nil {
		s.handleUploadFailure(w, r, req, err)
		return
	}

	record := recordFromMetadata(meta)
	if err := s.store.CreateUpload(r.Context(), record); err != nil {
		s.logger.Error("persisting upload record", "correlation_id", meta.CorrelationID, "error", err)
	}

	if meta.QuarantineDecision != nil && meta.QuarantineDecision.Action == models.ActionReview {
		s.recordReview(r, record, meta)
	}

	respondJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleUploadFailure(w http.ResponseWriter, r *http.Request, req *pipeline.Request, err error) {
	var rejection *pipeline.Rejection
	if errors.As(err, &rejection) {
		record := recordFromRejection(req, rejection)
		if dbErr := s.store.CreateUpload(r.Context(), record); dbErr != nil {
			s.logger.Error("persisting rejection record", "correlation_id", rejection.CorrelationID, "error", dbErr)
		}

		if rejection.Kind == pipeline.RejectThreat && rejection.Quarantine != nil {
			event := &models.QuarantineEvent{
				UploadID:      record.ID,
				CorrelationID: rejection.CorrelationID,
				ThreatLevel:   rejection.Assessment.Level,
				Action:        rejection.Quarantine.Action,
				Reason:        rejection.Quarantine.Reason,
				DurationHours: rejection.Quarantine.DurationHours,
			}
			if dbErr := s.store.CreateQuarantineEvent(r.Context(), event); dbErr != nil {
				s.logger.Error("persisting quarantine event", "correlation_id", rejection.CorrelationID, "error", dbErr)
			}
		}

		status := http.StatusBadRequest
		code := "upload_rejected"
		switch rejection.Kind {
		case pipeline.RejectPolicy:
			status = http.StatusUnprocessableEntity
			code = "policy_violation"
		case pipeline.RejectContent:
			status = http.StatusUnsupportedMediaType
			code = "content_mismatch"
		case pipeline.RejectThreat:
			status = http.StatusForbidden
			code = "threat_detected"
		}
		respondError(w, status, code, rejection.Reason)
		return
	}

	var infra *pipeline.InfraError
	if errors.As(err, &infra) {
		s.logger.Error("pipeline infrastructure failure",
			"correlation_id", infra.CorrelationID, "op", infra.Op, "error", infra.Err)
		respondError(w, http.StatusInternalServerError, "internal_error",
			fmt.Sprintf("upload processing failed (correlation %s)", infra.CorrelationID))
		return
	}

	s.logger.Error("unexpected pipeline failure", "error", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "upload processing failed")
}

func (s *Server) recordReview(r *http.Request, record *models.UploadRecord, meta *models.FileMetadata) {
	event := &models.QuarantineEvent{
		UploadID:      record.ID,
		CorrelationID: meta.CorrelationID,
		ThreatLevel:   meta.RiskAssessment.Level,
		Action:        models.ActionReview,
		Reason:        meta.QuarantineDecision.Reason,
	}
	if err := s.store.CreateQuarantineEvent(r.Context(), event); err != nil {
		s.logger.Error("persisting review event", "correlation_id", meta.CorrelationID, "error", err)
	}

	item := &queue.Item{
		UploadID:      record.ID,
		CorrelationID: meta.CorrelationID,
		Filename:      meta.OriginalFilename,
		OwnerID:       meta.OwnerID,
		RiskScore:     meta.RiskAssessment.Score,
		ThreatLevel:   meta.RiskAssessment.Level,
		Reason:        meta.QuarantineDecision.Reason,
	}
	if err := s.queue.Enqueue(r.Context(), item); err != nil {
		s.logger.Error("enqueueing review item", "correlation_id", meta.CorrelationID, "error", err)
	}
}

func recordFromMetadata(meta *models.FileMetadata) *models.UploadRecord {
	record := &models.UploadRecord{
		CorrelationID:    meta.CorrelationID,
		OriginalFilename: meta.OriginalFilename,
		StoredFilename:   meta.StoredFilename,
		StoragePath:      meta.StoragePath,
		Category:         meta.Category,
		Subtype:          meta.Subtype,
		SizeBytes:        meta.SizeBytes,
		ContentDigest:    meta.ContentDigest,
		OwnerID:          meta.OwnerID,
		FolderTag:        meta.FolderTag,
		Status:           models.UploadAccepted,
		Analysis:         analysisJSON(meta.MalwareScan, meta.BehavioralAnalysis, meta.ExternalScan),
	}
	if meta.MalwareScan != nil {
		record.Classification = string(meta.MalwareScan.Classification)
	}
	if meta.RiskAssessment != nil {
		record.RiskScore = meta.RiskAssessment.Score
		record.ThreatLevel = meta.RiskAssessment.Level
		record.ThreatFactors = meta.RiskAssessment.Factors
	}
	if meta.QuarantineDecision != nil {
		record.Action = meta.QuarantineDecision.Action
	}
	return record
}

func recordFromRejection(req *pipeline.Request, rejection *pipeline.Rejection) *models.UploadRecord {
	record := &models.UploadRecord{
		CorrelationID:    rejection.CorrelationID,
		OriginalFilename: req.Filename,
		Category:         req.Category,
		SizeBytes:        req.DeclaredSize,
		OwnerID:          req.OwnerID,
		FolderTag:        req.FolderTag,
		Status:           models.UploadRejected,
		RejectKind:       string(rejection.Kind),
		RejectReason:     rejection.Reason,
		Analysis:         analysisJSON(rejection.Scan, rejection.Behavioral, rejection.External),
	}
	if rejection.Scan != nil {
		record.Classification = string(rejection.Scan.Classification)
	}
	if rejection.Assessment != nil {
		record.RiskScore = rejection.Assessment.Score
		record.ThreatLevel = rejection.Assessment.Level
		record.ThreatFactors = rejection.Assessment.Factors
	}
	if rejection.Quarantine != nil {
		record.Action = rejection.Quarantine.Action
	}
	return record
}

func analysisJSON(scan *models.ScanResult, behavioral *models.BehavioralProfile, external *models.ExternalScanResult) models.JSONB {
	analysis := models.JSONB{}
	if scan != nil {
		analysis["malware_scan"] = scan
	}
	if behavioral != nil {
		analysis["behavioral_analysis"] = behavioral
	}
	if external != nil {
		analysis["external_scan"] = external
	}
	if len(analysis) == 0 {
		return nil
	}
	return analysis
}

func (s *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	filters := store.ListUploadFilters{
		Limit:  50,
		Offset: 0,
	}

	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		filters.OwnerID = &owner
	}
	if cat := r.URL.Query().Get("category"); cat != "" {
		category := models.FileCategory(cat)
		filters.Category = &category
	}
	if st := r.URL.Query().Get("status"); st != "" {
		status := models.UploadStatus(st)
		filters.Status = &status
	}
	if level := r.URL.Query().Get("threat_level"); level != "" {
		threatLevel := models.ThreatLevel(level)
		filters.ThreatLevel = &threatLevel
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filters.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n > 0 {
			filters.Offset = n
		}
	}

	records, total, err := s.store.ListUploads(r.Context(), filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSONWithMeta(w, http.StatusOK, records, &apiMeta{
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

func (s *Server) getUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid upload ID")
		return
	}

	record, err := s.store.GetUpload(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "not_found", "Upload not found")
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (s *Server) listQuarantine(w http.ResponseWriter, r *http.Request) {
	var status *models.QuarantineStatus
	if st := r.URL.Query().Get("status"); st != "" {
		qs := models.QuarantineStatus(st)
		status = &qs
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.store.ListQuarantineEvents(r.Context(), status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (s *Server) releaseQuarantine(w http.ResponseWriter, r *http.Request) {
	s.updateQuarantine(w, r, models.QuarantineReleased)
}

func (s *Server) escalateQuarantine(w http.ResponseWriter, r *http.Request) {
	s.updateQuarantine(w, r, models.QuarantineEscalated)
}

func (s *Server) updateQuarantine(w http.ResponseWriter, r *http.Request, status models.QuarantineStatus) {
	id, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid quarantine event ID")
		return
	}

	event, err := s.store.GetQuarantineEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "not_found", "Quarantine event not found")
		return
	}

	if err := s.store.UpdateQuarantineStatus(r.Context(), id, status); err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) reviewStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "queue_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) nextReviewItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.queue.Dequeue(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "queue_error", err.Error())
		return
	}
	if item == nil {
		respondJSON(w, http.StatusOK, nil)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) resolveReviewItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid review item ID")
		return
	}

	var body struct {
		Resolution queue.Resolution `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if body.Resolution != queue.ResolutionApproved && body.Resolution != queue.ResolutionRejected {
		respondError(w, http.StatusBadRequest, "invalid_resolution", "resolution must be approved or rejected")
		return
	}

	item, err := s.queue.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "queue_error", err.Error())
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, "not_found", "Review item not found")
		return
	}

	if err := s.queue.Resolve(r.Context(), item, body.Resolution); err != nil {
		respondError(w, http.StatusInternalServerError, "queue_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"resolution": string(body.Resolution)})
}

func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	data, err := reports.ActivitySummaryPDF(r.Context(), "Upload Security Activity Report",
		&reportDataProvider{store: s.store})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "report_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="upload-activity.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.GetActivityCounts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	rejections, err := s.store.GetRejectionStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	levels, err := s.store.GetThreatLevelStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	queueStats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("loading review queue stats", "error", err)
		queueStats = map[string]int64{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"counts":        counts,
		"rejections":    rejections,
		"threat_levels": levels,
		"review_queue":  queueStats,
	})
}
