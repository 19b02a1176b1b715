// Package review owns the human review gate between structure detection
// and alignment. All transitions are compare-and-set on the upload status.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

var (
	ErrUploadNotFound       = errors.New("upload not found")
	ErrNotProcessing        = errors.New("upload is not processing")
	ErrNotReadyForApproval  = errors.New("upload is not ready for approval")
	ErrNotReadyForRejection = errors.New("upload is not ready for rejection")
	ErrInvalidEdits         = errors.New("invalid structure edits")
)

const reviewPercent = 50

// Status is the externally visible review state of an upload.
type Status struct {
	UploadID        uuid.UUID               `json:"upload_id"`
	Status          domain.Status           `json:"status"`
	CurrentStage    int                     `json:"current_stage"`
	StageName       string                  `json:"stage_name"`
	ProgressPercent int                     `json:"progress_percent"`
	StatusMessage   string                  `json:"status_message,omitempty"`
	ErrorMessage    string                  `json:"error_message,omitempty"`
	CanResume       bool                    `json:"can_resume"`
	ResumeFromStage int                     `json:"resume_from_stage,omitempty"`
	Structure       *domain.StructureResult `json:"structure,omitempty"`
	Edits           domain.StructureEdits   `json:"human_structure_edits,omitempty"`
	Context         map[string]any          `json:"review_context,omitempty"`
	CourseID        *uuid.UUID              `json:"course_id,omitempty"`
	AllowedActions  []string                `json:"allowed_actions"`
	ReviewReadyAt   *time.Time              `json:"review_ready_at,omitempty"`
	ApprovedAt      *time.Time              `json:"approved_at,omitempty"`
	RejectedAt      *time.Time              `json:"rejected_at,omitempty"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

type Service struct {
	log     *logger.Logger
	uploads curriculum.UploadRepo
	tracker *progress.Tracker
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(log *logger.Logger, uploads curriculum.UploadRepo, tracker *progress.Tracker, metrics *observability.Metrics) *Service {
	return &Service{
		log:     log.With("service", "CurriculumReviewService"),
		uploads: uploads,
		tracker: tracker,
		metrics: metrics,
		now:     time.Now,
	}
}

// PauseForReview stores the detected structure and parks the upload in
// ready_for_review. Uploads already past stage 2 are not moved back.
func (s *Service) PauseForReview(ctx context.Context, uploadID uuid.UUID, parsed domain.ParsedContent, structure domain.StructureResult) error {
	raw, err := json.Marshal(structure)
	if err != nil {
		return fmt.Errorf("encode structure: %w", err)
	}
	reviewCtx, err := json.Marshal(map[string]any{
		"review": map[string]any{
			"course_title": structure.Course.Title,
			"modules":      len(structure.Modules),
			"lessons":      structure.LessonCount(),
			"tasks":        len(structure.Tasks),
			"source_type":  parsed.SourceType,
			"source_title": parsed.Metadata.Title,
			"sections":     len(parsed.Sections),
		},
	})
	if err != nil {
		return err
	}
	now := s.now()
	changed, err := s.uploads.UpdateFieldsWhere(dbctx.New(ctx), uploadID,
		curriculum.UploadGuard{Statuses: []domain.Status{domain.StatusProcessing}, MaxStage: domain.StageStructure},
		map[string]interface{}{
			"status":             domain.StatusReadyForReview,
			"current_stage":      domain.StageStructure,
			"progress_percent":   reviewPercent,
			"status_message":     "Structure ready for review",
			"stage_2_checkpoint": datatypes.JSON(raw),
			"stage_data":         datatypes.JSON(reviewCtx),
			"resume_from_stage":  domain.StageAlign,
			"can_resume":         true,
			"review_ready_at":    now,
		},
	)
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotProcessing
	}
	s.log.Info("upload paused for review", "upload_id", uploadID, "modules", len(structure.Modules))
	pct := reviewPercent
	s.tracker.Emit(ctx, uploadID, realtime.SSEEventUploadReadyForReview, progress.Event{
		UploadID:  uploadID,
		Status:    domain.StatusReadyForReview,
		Stage:     domain.StageStructure,
		StageName: domain.StageName(domain.StageStructure),
		Percent:   &pct,
	})
	return nil
}

// Approve applies edits to the reviewed structure and releases the upload
// to stage 3. Only one approval of a given review can succeed.
func (s *Service) Approve(ctx context.Context, uploadID uuid.UUID, edits domain.StructureEdits) (*domain.UploadRecord, error) {
	rec, err := s.uploads.GetByID(dbctx.New(ctx), uploadID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUploadNotFound
	}
	if rec.Status != domain.StatusReadyForReview {
		return nil, ErrNotReadyForApproval
	}
	var structure domain.StructureResult
	ok, err := rec.DecodeCheckpoint(domain.StageStructure, &structure)
	if err != nil {
		return nil, fmt.Errorf("decode reviewed structure: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("upload %s has no structure to approve", uploadID)
	}
	merged, err := ApplyEdits(structure, edits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEdits, err)
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]interface{}{
		"status":             domain.StatusProcessing,
		"current_stage":      domain.StageAlign,
		"stage_2_checkpoint": datatypes.JSON(raw),
		"status_message":     "Structure approved",
		"approved_at":        now,
		"error_message":      "",
	}
	if len(edits) > 0 {
		editsRaw, err := json.Marshal(edits)
		if err != nil {
			return nil, err
		}
		updates["human_structure_edits"] = datatypes.JSON(editsRaw)
	}
	changed, err := s.uploads.UpdateFieldsWhere(dbctx.New(ctx), uploadID,
		curriculum.UploadGuard{Statuses: []domain.Status{domain.StatusReadyForReview}},
		updates,
	)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, ErrNotReadyForApproval
	}
	s.metrics.IncReviewDecision("approved")
	s.log.Info("upload approved", "upload_id", uploadID, "edited_elements", len(edits))
	s.tracker.Emit(ctx, uploadID, realtime.SSEEventUploadApproved, progress.Event{
		UploadID: uploadID,
		Status:   domain.StatusProcessing,
		Stage:    domain.StageAlign,
	})
	return s.uploads.GetByID(dbctx.New(ctx), uploadID)
}

// Reject ends a review without producing a course.
func (s *Service) Reject(ctx context.Context, uploadID uuid.UUID, reason string) (*domain.UploadRecord, error) {
	msg := "Rejected by reviewer"
	if r := strings.TrimSpace(reason); r != "" {
		msg = msg + ": " + r
	}
	changed, err := s.uploads.UpdateFieldsWhere(dbctx.New(ctx), uploadID,
		curriculum.UploadGuard{Statuses: []domain.Status{domain.StatusReadyForReview}},
		map[string]interface{}{
			"status":            domain.StatusRejected,
			"rejected_at":       s.now(),
			"can_resume":        false,
			"resume_from_stage": 0,
			"status_message":    msg,
		},
	)
	if err != nil {
		return nil, err
	}
	rec, err := s.uploads.GetByID(dbctx.New(ctx), uploadID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUploadNotFound
	}
	if !changed {
		return nil, ErrNotReadyForRejection
	}
	s.metrics.IncReviewDecision("rejected")
	s.log.Info("upload rejected", "upload_id", uploadID)
	s.tracker.Emit(ctx, uploadID, realtime.SSEEventUploadRejected, progress.Event{
		UploadID: uploadID,
		Status:   domain.StatusRejected,
		Message:  msg,
	})
	return rec, nil
}

// GetStatus projects an upload into its review view.
func (s *Service) GetStatus(ctx context.Context, uploadID uuid.UUID) (*Status, error) {
	rec, err := s.uploads.GetByID(dbctx.New(ctx), uploadID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUploadNotFound
	}
	return Project(rec)
}

// Project builds the review view of rec.
func Project(rec *domain.UploadRecord) (*Status, error) {
	out := &Status{
		UploadID:        rec.ID,
		Status:          rec.Status,
		CurrentStage:    rec.CurrentStage,
		StageName:       domain.StageName(rec.CurrentStage),
		ProgressPercent: rec.ProgressPercent,
		StatusMessage:   rec.StatusMessage,
		ErrorMessage:    rec.ErrorMessage,
		CanResume:       rec.CanResume,
		ResumeFromStage: rec.ResumeFromStage,
		CourseID:        rec.CourseID,
		AllowedActions:  AllowedActions(rec.Status),
		ReviewReadyAt:   rec.ReviewReadyAt,
		ApprovedAt:      rec.ApprovedAt,
		RejectedAt:      rec.RejectedAt,
		CompletedAt:     rec.CompletedAt,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	var structure domain.StructureResult
	ok, err := rec.DecodeCheckpoint(domain.StageStructure, &structure)
	if err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}
	if ok {
		out.Structure = &structure
	}
	if len(rec.HumanStructureEdits) > 0 {
		if err := json.Unmarshal(rec.HumanStructureEdits, &out.Edits); err != nil {
			return nil, fmt.Errorf("decode edits: %w", err)
		}
	}
	if len(rec.StageData) > 0 {
		var data map[string]any
		if err := json.Unmarshal(rec.StageData, &data); err == nil {
			if rc, ok := data["review"].(map[string]any); ok {
				out.Context = rc
			}
		}
	}
	return out, nil
}

// AllowedActions lists the user actions valid in status.
func AllowedActions(st domain.Status) []string {
	switch st {
	case domain.StatusReadyForReview:
		return []string{"approve", "reject"}
	case domain.StatusError:
		return []string{"retry"}
	default:
		return []string{}
	}
}
