package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	"github.com/optio-learning/optio-backend/internal/domain/course"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/content"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

var errCompletionSkipped = errors.New("upload left processing before completion")

// RunGeneration runs stages 3 and 4 for an approved upload and persists the
// resulting course. It returns nil without doing anything when the upload
// was rejected, failed or already completed.
func (r *Runner) RunGeneration(ctx context.Context, uploadID uuid.UUID) (err error) {
	ctx, span := observability.StartSpan(ctx, "curriculum.pipeline.generate", attribute.String("upload_id", uploadID.String()))
	defer func() { observability.EndSpan(span, err) }()

	rec, err := r.uploads.GetByID(dbctx.New(ctx), uploadID)
	if err != nil {
		return err
	}
	if rec == nil {
		return &StageError{Stage: domain.StageAlign, Permanent: true, Err: ErrUploadNotFound}
	}
	switch rec.Status {
	case domain.StatusProcessing:
	case domain.StatusReadyForReview:
		return &StageError{Stage: domain.StageAlign, Permanent: true, Err: ErrAwaitingReview}
	default:
		r.log.Info("generation run skipped", "upload_id", uploadID, "status", rec.Status)
		return nil
	}
	var structure domain.StructureResult
	ok, err := rec.DecodeCheckpoint(domain.StageStructure, &structure)
	if err != nil {
		return r.stageFailed(ctx, uploadID, domain.StageAlign, time.Now(), err)
	}
	if !ok || rec.ApprovedAt == nil || rec.CurrentStage < domain.StageAlign {
		return &StageError{Stage: domain.StageAlign, Permanent: true, Err: ErrAwaitingReview}
	}
	cfg, err := rec.DecodeConfig()
	if err != nil {
		r.log.Warn("unreadable upload config; using defaults", "upload_id", uploadID, "error", err)
		cfg = domain.UploadConfig{TransformationLevel: domain.TransformModerate}
	}

	aligned, err := r.alignStage(ctx, rec, structure, cfg)
	if err != nil {
		return err
	}

	// Rejection cannot follow approval, but a concurrent failure or a
	// finished duplicate run can.
	current, err := r.uploads.GetByID(dbctx.New(ctx), uploadID)
	if err != nil {
		return err
	}
	if current == nil || current.Status != domain.StatusProcessing {
		r.log.Info("upload left processing before generation", "upload_id", uploadID)
		return nil
	}

	return r.generateStage(ctx, rec, aligned, cfg)
}

func (r *Runner) alignStage(ctx context.Context, rec *domain.UploadRecord, structure domain.StructureResult, cfg domain.UploadConfig) (domain.AlignmentResult, error) {
	var aligned domain.AlignmentResult
	ok, err := rec.DecodeCheckpoint(domain.StageAlign, &aligned)
	if err == nil && ok {
		r.log.Debug("reusing alignment checkpoint", "upload_id", rec.ID)
		return aligned, nil
	}
	if err != nil {
		r.log.Warn("unreadable alignment checkpoint; aligning again", "upload_id", rec.ID, "error", err)
	}

	started := time.Now()
	r.tracker.UpdateProgress(ctx, rec.ID, progress.Update{
		Stage:   domain.StageAlign,
		Message: "Aligning with the Optio philosophy",
		Percent: pct(60),
	})
	aligned, err = r.ai.AlignPhilosophy(ctx, structure, cfg.TransformationLevel, cfg.PreserveStructure)
	if err != nil {
		return aligned, r.stageFailed(ctx, rec.ID, domain.StageAlign, started, err)
	}
	if res := r.tracker.SaveCheckpoint(ctx, rec.ID, domain.StageAlign, aligned); res.Failed() {
		r.log.Warn("continuing without alignment checkpoint", "upload_id", rec.ID)
	}
	r.tracker.UpdateProgress(ctx, rec.ID, progress.Update{
		Stage:   domain.StageAlign,
		Message: "Alignment complete",
		Percent: pct(75),
		StageData: map[string]any{
			"alignment_score":      aligned.AlignmentScore,
			"transformation_notes": aligned.TransformationNotes,
			"transformation_level": cfg.TransformationLevel,
		},
	})
	r.stageDone(domain.StageAlign, started)
	return aligned, nil
}

func (r *Runner) generateStage(ctx context.Context, rec *domain.UploadRecord, aligned domain.AlignmentResult, cfg domain.UploadConfig) error {
	started := time.Now()
	r.tracker.UpdateProgress(ctx, rec.ID, progress.Update{
		Stage:   domain.StageGenerate,
		Message: "Generating course content",
		Percent: pct(80),
	})
	gen, err := r.ai.GenerateCourseContent(ctx, aligned, cfg.LearningObjectives)
	if err != nil {
		return r.stageFailed(ctx, rec.ID, domain.StageGenerate, started, err)
	}
	uploadID := rec.ID
	c, err := content.BuildCourse(gen, content.BuildInput{
		OwnerUserID: rec.OwnerUserID,
		UploadID:    &uploadID,
		Source:      course.SourceUpload,
		Metadata: map[string]any{
			"source_filename":      rec.SourceFilename,
			"transformation_level": cfg.TransformationLevel,
			"alignment_score":      aligned.AlignmentScore,
			"learning_objectives":  cfg.LearningObjectives,
		},
	})
	if err != nil {
		return r.stageFailed(ctx, rec.ID, domain.StageGenerate, started, err)
	}

	courseID, err := r.complete(ctx, rec.ID, c, gen)
	if errors.Is(err, errCompletionSkipped) {
		r.log.Info("generated course discarded; upload no longer processing", "upload_id", rec.ID)
		return nil
	}
	if err != nil {
		return r.stageFailed(ctx, rec.ID, domain.StageGenerate, started, err)
	}
	r.stageDone(domain.StageGenerate, started)
	r.tracker.Emit(ctx, rec.ID, realtime.SSEEventUploadComplete, progress.Event{
		UploadID:  rec.ID,
		Status:    domain.StatusComplete,
		Stage:     domain.StageGenerate,
		StageName: domain.StageName(domain.StageGenerate),
		Percent:   pct(100),
		Message:   "Course created",
		CourseID:  &courseID,
	})
	r.log.Info("curriculum upload complete",
		"upload_id", rec.ID,
		"course_id", courseID,
		"quests", len(c.Quests),
	)
	return nil
}

// complete inserts the course tree and flips the upload to complete in one
// transaction. A course already linked to the upload is reused.
func (r *Runner) complete(ctx context.Context, uploadID uuid.UUID, c *course.Course, gen domain.GenerationResult) (uuid.UUID, error) {
	raw, err := json.Marshal(gen)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode stage 4 checkpoint: %w", err)
	}
	var courseID uuid.UUID
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		existing, err := r.courses.GetByUploadID(dbc, uploadID)
		if err != nil {
			return err
		}
		if existing != nil {
			courseID = existing.ID
		} else {
			if err := r.courses.CreateTree(dbc, c); err != nil {
				return err
			}
			courseID = c.ID
		}
		now := time.Now()
		changed, err := r.uploads.UpdateFieldsWhere(dbc, uploadID,
			curriculum.UploadGuard{Statuses: []domain.Status{domain.StatusProcessing}},
			map[string]interface{}{
				"status":             domain.StatusComplete,
				"current_stage":      domain.StageGenerate,
				"progress_percent":   100,
				"status_message":     "Course created",
				"course_id":          courseID,
				"stage_4_checkpoint": datatypes.JSON(raw),
				"can_resume":         false,
				"completed_at":       now,
			},
		)
		if err != nil {
			return err
		}
		if !changed {
			return errCompletionSkipped
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return courseID, nil
}
