package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/uploadguard/uploadguard/internal/models"
)

type Store struct {
	db *sqlx.DB
}

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUpload(ctx context.Context, record *models.UploadRecord) error {
	query := `
		INSERT INTO uploads (
			id, correlation_id, original_filename, stored_filename, storage_path,
			category, subtype, size_bytes, content_digest, owner_id, folder_tag,
			status, reject_kind, reject_reason, classification, risk_score,
			threat_level, action, threat_factors, analysis, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
	`
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.CorrelationID, record.OriginalFilename, record.StoredFilename, record.StoragePath,
		record.Category, record.Subtype, record.SizeBytes, record.ContentDigest, record.OwnerID, record.FolderTag,
		record.Status, record.RejectKind, record.RejectReason, record.Classification, record.RiskScore,
		record.ThreatLevel, record.Action, record.ThreatFactors, record.Analysis, record.CreatedAt,
	)
	return err
}

func (s *Store) GetUpload(ctx context.Context, id uuid.UUID) (*models.UploadRecord, error) {
	var record models.UploadRecord
	query := `SELECT * FROM uploads WHERE id = $1`
	err := s.db.GetContext(ctx, &record, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &record, err
}

func (s *Store) GetUploadByCorrelationID(ctx context.Context, correlationID string) (*models.UploadRecord, error) {
	var record models.UploadRecord
	query := `SELECT * FROM uploads WHERE correlation_id = $1`
	err := s.db.GetContext(ctx, &record, query, correlationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &record, err
}

type ListUploadFilters struct {
	OwnerID     *string
	Category    *models.FileCategory
	Status      *models.UploadStatus
	ThreatLevel *models.ThreatLevel
	Limit       int
	Offset      int
}

func (s *Store) ListUploads(ctx context.Context, filters ListUploadFilters) ([]models.UploadRecord, int, error) {
	baseQuery := `FROM uploads WHERE 1=1`
	args := make([]interface{}, 0)
	argIdx := 1

	if filters.OwnerID != nil {
		baseQuery += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, *filters.OwnerID)
		argIdx++
	}
	if filters.Category != nil {
		baseQuery += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, *filters.Category)
		argIdx++
	}
	if filters.Status != nil {
		baseQuery += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filters.Status)
		argIdx++
	}
	if filters.ThreatLevel != nil {
		baseQuery += fmt.Sprintf(" AND threat_level = $%d", argIdx)
		args = append(args, *filters.ThreatLevel)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	selectQuery := "SELECT * " + baseQuery + " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		selectQuery += fmt.Sprintf(" LIMIT %d", filters.Limit)
	}
	if filters.Offset > 0 {
		selectQuery += fmt.Sprintf(" OFFSET %d", filters.Offset)
	}

	var records []models.UploadRecord
	if err := s.db.SelectContext(ctx, &records, selectQuery, args...); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (s *Store) CreateQuarantineEvent(ctx context.Context, event *models.QuarantineEvent) error {
	query := `
		INSERT INTO quarantine_events (
			id, upload_id, correlation_id, threat_level, action, reason,
			duration_hours, status, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()
	if event.Status == "" {
		event.Status = models.QuarantineHeld
	}
	if event.DurationHours > 0 && event.ExpiresAt == nil {
		expires := event.CreatedAt.Add(time.Duration(event.DurationHours) * time.Hour)
		event.ExpiresAt = &expires
	}

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.UploadID, event.CorrelationID, event.ThreatLevel, event.Action,
		event.Reason, event.DurationHours, event.Status, event.ExpiresAt, event.CreatedAt,
	)
	return err
}

func (s *Store) GetQuarantineEvent(ctx context.Context, id uuid.UUID) (*models.QuarantineEvent, error) {
	var event models.QuarantineEvent
	query := `SELECT * FROM quarantine_events WHERE id = $1`
	err := s.db.GetContext(ctx, &event, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &event, err
}

func (s *Store) ListQuarantineEvents(ctx context.Context, status *models.QuarantineStatus, limit int) ([]models.QuarantineEvent, error) {
	query := `SELECT * FROM quarantine_events WHERE 1=1`
	args := make([]interface{}, 0)

	if status != nil {
		query += " AND status = $1"
		args = append(args, *status)
	}

	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var events []models.QuarantineEvent
	err := s.db.SelectContext(ctx, &events, query, args...)
	return events, err
}

func (s *Store) UpdateQuarantineStatus(ctx context.Context, id uuid.UUID, status models.QuarantineStatus) error {
	query := `UPDATE quarantine_events SET status = $1, released_at = $2 WHERE id = $3`
	_, err := s.db.ExecContext(ctx, query, status, time.Now(), id)
	return err
}

// ReleaseExpiredQuarantines flips every held event past its expiry to
// released and returns the count. Run by the scheduled sweep.
func (s *Store) ReleaseExpiredQuarantines(ctx context.Context) (int, error) {
	query := `
		UPDATE quarantine_events
		SET status = $1, released_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $2
	`
	result, err := s.db.ExecContext(ctx, query, models.QuarantineReleased, time.Now(), models.QuarantineHeld)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

type ActivityCounts struct {
	TotalUploads     int `db:"total_uploads"`
	AcceptedUploads  int `db:"accepted_uploads"`
	RejectedUploads  int `db:"rejected_uploads"`
	ThreatRejections int `db:"threat_rejections"`
	HeldQuarantines  int `db:"held_quarantines"`
	CriticalUploads  int `db:"critical_uploads"`
}

func (s *Store) GetActivityCounts(ctx context.Context) (*ActivityCounts, error) {
	counts := &ActivityCounts{}

	query := `
		SELECT
			(SELECT COUNT(*) FROM uploads) AS total_uploads,
			(SELECT COUNT(*) FROM uploads WHERE status = 'accepted') AS accepted_uploads,
			(SELECT COUNT(*) FROM uploads WHERE status = 'rejected') AS rejected_uploads,
			(SELECT COUNT(*) FROM uploads WHERE status = 'rejected' AND reject_kind = 'threat') AS threat_rejections,
			(SELECT COUNT(*) FROM quarantine_events WHERE status = 'held') AS held_quarantines,
			(SELECT COUNT(*) FROM uploads WHERE threat_level = 'CRITICAL') AS critical_uploads
	`

	err := s.db.GetContext(ctx, counts, query)
	if err != nil {
		return nil, fmt.Errorf("getting activity counts: %w", err)
	}

	return counts, nil
}

func (s *Store) GetRejectionStats(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT reject_kind, COUNT(*) as count
		FROM uploads
		WHERE status = 'rejected'
		GROUP BY reject_kind
	`

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		stats[kind] = count
	}
	return stats, nil
}

func (s *Store) GetThreatLevelStats(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT threat_level, COUNT(*) as count
		FROM uploads
		WHERE threat_level IS NOT NULL AND threat_level != ''
		GROUP BY threat_level
	`

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		stats[level] = count
	}
	return stats, nil
}
