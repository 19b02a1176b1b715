package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/ai"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/parsing"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/pipeline"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/review"
	"github.com/optio-learning/optio-backend/internal/platform/apierr"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/platform/objectstore"
)

const (
	defaultMaxUploadBytes = 50 << 20
	defaultListLimit      = 50
	maxLearningObjectives = 20
)

// SubmitInput is a new curriculum upload as received from the client.
type SubmitInput struct {
	Filename    string
	ContentType string
	File        io.Reader
	Config      domain.UploadConfig
}

type SubmitResult struct {
	Upload *review.Status `json:"upload"`
	Job    *jobs.JobRun   `json:"job"`
}

// ActionResult is an upload after a user action, with the job the action
// queued, if any.
type ActionResult struct {
	Upload *review.Status `json:"upload"`
	Job    *jobs.JobRun   `json:"job,omitempty"`
}

// RetryPreparer re-arms failed uploads; pipeline.Runner satisfies it.
type RetryPreparer interface {
	PrepareRetry(ctx context.Context, uploadID uuid.UUID) (int, error)
	Fail(ctx context.Context, uploadID uuid.UUID, err error) progress.Result
}

type UploadService interface {
	Submit(ctx context.Context, ownerUserID uuid.UUID, in SubmitInput) (*SubmitResult, error)
	Get(ctx context.Context, ownerUserID, uploadID uuid.UUID) (*review.Status, error)
	List(ctx context.Context, ownerUserID uuid.UUID, limit int) ([]*review.Status, error)
	Approve(ctx context.Context, ownerUserID, uploadID uuid.UUID, edits domain.StructureEdits) (*ActionResult, error)
	Reject(ctx context.Context, ownerUserID, uploadID uuid.UUID, reason string) (*ActionResult, error)
	Retry(ctx context.Context, ownerUserID, uploadID uuid.UUID) (*ActionResult, error)
}

type UploadServiceConfig struct {
	MaxUploadBytes int64
}

type uploadService struct {
	db       *gorm.DB
	log      *logger.Logger
	uploads  curriculum.UploadRepo
	store    objectstore.Store
	jobs     JobService
	review   *review.Service
	pipeline RetryPreparer
	cfg      UploadServiceConfig
}

func NewUploadService(
	db *gorm.DB,
	baseLog *logger.Logger,
	uploads curriculum.UploadRepo,
	store objectstore.Store,
	jobs JobService,
	reviewSvc *review.Service,
	retry RetryPreparer,
	cfg UploadServiceConfig,
) UploadService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &uploadService{
		db:       db,
		log:      baseLog.With("service", "UploadService"),
		uploads:  uploads,
		store:    store,
		jobs:     jobs,
		review:   reviewSvc,
		pipeline: retry,
		cfg:      cfg,
	}
}

// Submit stores the source file, creates the upload record and queues
// parsing and structure detection. The record and its job are created in
// one transaction.
func (s *uploadService) Submit(ctx context.Context, ownerUserID uuid.UUID, in SubmitInput) (*SubmitResult, error) {
	if ownerUserID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", nil)
	}
	filename := strings.TrimSpace(in.Filename)
	if filename == "" || in.File == nil {
		return nil, apierr.BadRequest("missing_file", fmt.Errorf("a source file is required"))
	}
	cfg, err := normalizeUploadConfig(in.Config)
	if err != nil {
		return nil, apierr.BadRequest("invalid_config", err)
	}
	data, err := io.ReadAll(io.LimitReader(in.File, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, apierr.BadRequest("read_file_failed", err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, apierr.New(http.StatusRequestEntityTooLarge, "file_too_large", pipeline.ErrSourceTooLarge)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apierr.BadRequest("empty_file", parsing.ErrEmptyContent)
	}
	if !parsing.Supported(parsing.RawPackage{Filename: filename, ContentType: in.ContentType, Data: data}) {
		return nil, apierr.BadRequest("unsupported_format", fmt.Errorf("%w: %s", parsing.ErrUnsupportedFormat, filename))
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode upload config: %w", err)
	}

	uploadID := uuid.New()
	key := objectstore.SourceKey(uploadID, filename)
	if err := s.store.UploadFile(ctx, key, bytes.NewReader(data), in.ContentType); err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "store_file_failed", err)
	}

	rec := &domain.UploadRecord{
		ID:                uploadID,
		OwnerUserID:       ownerUserID,
		SourceFilename:    filename,
		SourceContentType: in.ContentType,
		SourceStorageKey:  key,
		Status:            domain.StatusProcessing,
		CurrentStage:      domain.StageParse,
		StatusMessage:     "Queued",
		Config:            datatypes.JSON(cfgJSON),
	}
	var job *jobs.JobRun
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.uploads.Create(dbc, rec); err != nil {
			return fmt.Errorf("create upload: %w", err)
		}
		var err error
		job, err = s.jobs.Enqueue(dbc, ownerUserID, jobs.TypeCurriculumStructure, jobs.EntityCurriculumUpload, &uploadID, map[string]any{
			"upload_id": uploadID.String(),
		})
		return err
	})
	if err != nil {
		if delErr := s.store.DeleteFile(ctx, key); delErr != nil {
			s.log.Warn("orphaned source file", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("submit upload: %w", err)
	}
	s.log.Info("curriculum upload submitted",
		"upload_id", uploadID,
		"filename", filename,
		"bytes", len(data),
		"level", cfg.TransformationLevel,
		"objectives", len(cfg.LearningObjectives),
	)
	st, err := review.Project(rec)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Upload: st, Job: job}, nil
}

func (s *uploadService) Get(ctx context.Context, ownerUserID, uploadID uuid.UUID) (*review.Status, error) {
	rec, err := s.owned(ctx, ownerUserID, uploadID)
	if err != nil {
		return nil, err
	}
	return review.Project(rec)
}

func (s *uploadService) List(ctx context.Context, ownerUserID uuid.UUID, limit int) ([]*review.Status, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	recs, err := s.uploads.ListByOwner(dbctx.New(ctx), ownerUserID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*review.Status, 0, len(recs))
	for _, rec := range recs {
		st, err := review.Project(rec)
		if err != nil {
			s.log.Warn("skipping unreadable upload", "upload_id", rec.ID, "error", err)
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// Approve records the review and queues alignment and generation. If the
// job cannot be queued the upload is marked failed so a retry can resume it
// from stage 3.
func (s *uploadService) Approve(ctx context.Context, ownerUserID, uploadID uuid.UUID, edits domain.StructureEdits) (*ActionResult, error) {
	if _, err := s.owned(ctx, ownerUserID, uploadID); err != nil {
		return nil, err
	}
	rec, err := s.review.Approve(ctx, uploadID, edits)
	if err != nil {
		return nil, reviewError(err)
	}
	if rec == nil {
		return nil, apierr.NotFound("upload_not_found", review.ErrUploadNotFound)
	}
	job, err := s.jobs.Enqueue(dbctx.New(ctx), ownerUserID, jobs.TypeCurriculumGenerate, jobs.EntityCurriculumUpload, &uploadID, map[string]any{
		"upload_id": uploadID.String(),
	})
	if err != nil {
		s.pipeline.Fail(ctx, uploadID, err)
		return nil, fmt.Errorf("queue generation: %w", err)
	}
	st, err := review.Project(rec)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Upload: st, Job: job}, nil
}

func (s *uploadService) Reject(ctx context.Context, ownerUserID, uploadID uuid.UUID, reason string) (*ActionResult, error) {
	if _, err := s.owned(ctx, ownerUserID, uploadID); err != nil {
		return nil, err
	}
	rec, err := s.review.Reject(ctx, uploadID, reason)
	if err != nil {
		return nil, reviewError(err)
	}
	st, err := review.Project(rec)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Upload: st}, nil
}

// Retry re-enters a failed upload at the stage it can resume from.
func (s *uploadService) Retry(ctx context.Context, ownerUserID, uploadID uuid.UUID) (*ActionResult, error) {
	if _, err := s.owned(ctx, ownerUserID, uploadID); err != nil {
		return nil, err
	}
	stage, err := s.pipeline.PrepareRetry(ctx, uploadID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotRetryable) {
			return nil, apierr.Conflict("upload_not_retryable", err)
		}
		return nil, reviewError(err)
	}
	jobType := jobs.TypeCurriculumStructure
	if stage >= domain.StageAlign {
		jobType = jobs.TypeCurriculumGenerate
	}
	job, err := s.jobs.Enqueue(dbctx.New(ctx), ownerUserID, jobType, jobs.EntityCurriculumUpload, &uploadID, map[string]any{
		"upload_id": uploadID.String(),
		"retry":     true,
	})
	if err != nil {
		s.pipeline.Fail(ctx, uploadID, err)
		return nil, fmt.Errorf("queue retry: %w", err)
	}
	rec, err := s.uploads.GetByID(dbctx.New(ctx), uploadID)
	if err != nil || rec == nil {
		return &ActionResult{Job: job}, err
	}
	st, err := review.Project(rec)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Upload: st, Job: job}, nil
}

// owned loads the upload only if ownerUserID owns it. Uploads of other users
// are reported as missing.
func (s *uploadService) owned(ctx context.Context, ownerUserID, uploadID uuid.UUID) (*domain.UploadRecord, error) {
	rec, err := s.uploads.GetForOwner(dbctx.New(ctx), ownerUserID, uploadID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apierr.NotFound("upload_not_found", review.ErrUploadNotFound)
	}
	return rec, nil
}

func reviewError(err error) error {
	switch {
	case errors.Is(err, review.ErrUploadNotFound):
		return apierr.NotFound("upload_not_found", err)
	case errors.Is(err, review.ErrNotReadyForApproval):
		return apierr.Conflict("upload_not_ready_for_approval", err)
	case errors.Is(err, review.ErrNotReadyForRejection):
		return apierr.Conflict("upload_not_ready_for_rejection", err)
	case errors.Is(err, review.ErrInvalidEdits):
		return apierr.BadRequest("invalid_edits", err)
	default:
		return err
	}
}

func normalizeUploadConfig(in domain.UploadConfig) (domain.UploadConfig, error) {
	out := in
	if out.TransformationLevel == "" {
		out.TransformationLevel = domain.TransformModerate
	}
	if !out.TransformationLevel.Valid() {
		return out, fmt.Errorf("transformation_level must be one of light, moderate, full")
	}
	objectives, err := cleanObjectives(in.LearningObjectives)
	if err != nil {
		return out, err
	}
	out.LearningObjectives = objectives
	if len(out.LearningObjectives) > maxLearningObjectives {
		return out, fmt.Errorf("at most %d learning objectives are supported", maxLearningObjectives)
	}
	return out, nil
}

// cleanObjectives trims objectives and drops blanks. Objectives that differ
// only in case or spacing are refused; each must yield its own project.
func cleanObjectives(in []string) ([]string, error) {
	var out []string
	seen := map[string]string{}
	for _, o := range in {
		if o = strings.TrimSpace(o); o == "" {
			continue
		}
		key := ai.ObjectiveKey(o)
		if first, dup := seen[key]; dup {
			return nil, fmt.Errorf("learning objective %q repeats %q", o, first)
		}
		seen[key] = o
		out = append(out, o)
	}
	return out, nil
}
