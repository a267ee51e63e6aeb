package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/uploadguard/uploadguard/internal/behavior"
	"github.com/uploadguard/uploadguard/internal/clamav"
	"github.com/uploadguard/uploadguard/internal/config"
	"github.com/uploadguard/uploadguard/internal/filetype"
	"github.com/uploadguard/uploadguard/internal/models"
	"github.com/uploadguard/uploadguard/internal/pipeline"
	"github.com/uploadguard/uploadguard/internal/queue"
	"github.com/uploadguard/uploadguard/internal/reports"
	"github.com/uploadguard/uploadguard/internal/risk"
	"github.com/uploadguard/uploadguard/internal/scheduler"
	"github.com/uploadguard/uploadguard/internal/storage"
	"github.com/uploadguard/uploadguard/internal/store"
)

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	store  *store.Store
	queue  *queue.Queue
	http   *http.Server
	logger *slog.Logger

	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	q, err := queue.New(queue.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing review queue: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		store:  st,
		queue:  q,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	limits := make(map[string]filetype.Limits, len(cfg.Pipeline.Categories))
	for cat, l := range cfg.Pipeline.Categories {
		limits[cat] = filetype.Limits{
			MaxSizeBytes:  l.MaxSizeBytes,
			NormalMinSize: l.NormalMin,
			NormalMaxSize: l.NormalMax,
		}
	}
	registry := filetype.NewRegistryWithLimits(limits)

	paths, err := storage.NewPathBuilder(cfg.Pipeline.MediaRoot)
	if err != nil {
		return nil, fmt.Errorf("initializing path builder: %w", err)
	}

	external := clamav.New(clamav.Config{
		Enabled:      cfg.ClamAV.Enabled,
		Binary:       cfg.ClamAV.Binary,
		ProbeTimeout: cfg.ClamAV.ProbeTimeout,
		ScanTimeout:  cfg.ClamAV.ScanTimeout,
	}, s.logger)

	s.pipeline = pipeline.New(registry, paths, external, s.logger,
		pipeline.WithAnalyzer(behavior.NewWithSampleSize(cfg.Pipeline.EntropySampleSize)),
		pipeline.WithRiskEngine(risk.New(cfg.Quarantine.DurationHours)),
	)

	s.scheduler = scheduler.New(st, s.logger)

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", s.uploadFile)
			r.Get("/", s.listUploads)
			r.Get("/{uploadID}", s.getUpload)
		})

		r.Route("/quarantine", func(r chi.Router) {
			r.Get("/", s.listQuarantine)
			r.Post("/{eventID}/release", s.releaseQuarantine)
			r.Post("/{eventID}/escalate", s.escalateQuarantine)
		})

		r.Route("/review", func(r chi.Router) {
			r.Get("/stats", s.reviewStats)
			r.Post("/next", s.nextReviewItem)
			r.Post("/{itemID}/resolve", s.resolveReviewItem)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/generate", s.generateReport)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/summary", s.dashboardSummary)
		})
	})
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.scheduler.Start(s.cfg.Quarantine.SweepSchedule); err != nil {
		return fmt.Errorf("starting quarantine sweep: %w", err)
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) Close() error {
	if err := s.queue.Close(); err != nil {
		s.logger.Error("closing review queue", "error", err)
	}
	return s.store.Close()
}

// reportDataProvider adapts the store to the report package's surface.
type reportDataProvider struct {
	store *store.Store
}

func (p *reportDataProvider) GetActivityCounts(ctx context.Context) (*reports.ActivityCounts, error) {
	counts, err := p.store.GetActivityCounts(ctx)
	if err != nil {
		return nil, err
	}
	return &reports.ActivityCounts{
		TotalUploads:     counts.TotalUploads,
		AcceptedUploads:  counts.AcceptedUploads,
		RejectedUploads:  counts.RejectedUploads,
		ThreatRejections: counts.ThreatRejections,
		HeldQuarantines:  counts.HeldQuarantines,
		CriticalUploads:  counts.CriticalUploads,
	}, nil
}

func (p *reportDataProvider) GetRejectionStats(ctx context.Context) (map[string]int, error) {
	return p.store.GetRejectionStats(ctx)
}

func (p *reportDataProvider) GetThreatLevelStats(ctx context.Context) (map[string]int, error) {
	return p.store.GetThreatLevelStats(ctx)
}

func (p *reportDataProvider) ListQuarantineEvents(ctx context.Context, status *models.QuarantineStatus, limit int) ([]models.QuarantineEvent, error) {
	return p.store.ListQuarantineEvents(ctx, status, limit)
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    *apiMeta    `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiMeta struct {
	Total  int `json:"total,omitempty"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondJSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *apiMeta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "db_unavailable", "Database not available")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
