package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/parsing"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/review"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

// RunStructure runs stages 1 and 2 and parks the upload for review. An
// upload that is no longer processing, or whose structure was already
// approved, is left alone.
func (r *Runner) RunStructure(ctx context.Context, uploadID uuid.UUID) (err error) {
	ctx, span := observability.StartSpan(ctx, "curriculum.pipeline.structure", attribute.String("upload_id", uploadID.String()))
	defer func() { observability.EndSpan(span, err) }()

	rec, err := r.uploads.GetByID(dbctx.New(ctx), uploadID)
	if err != nil {
		return err
	}
	if rec == nil {
		return &StageError{Stage: domain.StageParse, Permanent: true, Err: ErrUploadNotFound}
	}
	if rec.Status != domain.StatusProcessing {
		r.log.Info("structure run skipped", "upload_id", uploadID, "status", rec.Status)
		return nil
	}
	if rec.CurrentStage >= domain.StageAlign || rec.ApprovedAt != nil {
		r.log.Info("structure run skipped; already approved", "upload_id", uploadID, "stage", rec.CurrentStage)
		return nil
	}
	cfg, err := rec.DecodeConfig()
	if err != nil {
		return r.stageFailed(ctx, uploadID, domain.StageParse, time.Now(), fmt.Errorf("%w: bad upload config: %v", parsing.ErrEmptyContent, err))
	}

	parsed, err := r.parseStage(ctx, rec, cfg)
	if err != nil {
		return err
	}

	started := time.Now()
	r.tracker.UpdateProgress(ctx, uploadID, progress.Update{
		Stage:   domain.StageStructure,
		Message: "Detecting course structure",
		Percent: pct(25),
	})
	structure, err := r.ai.DetectStructure(ctx, parsed)
	if err != nil {
		return r.stageFailed(ctx, uploadID, domain.StageStructure, started, err)
	}
	if err := r.review.PauseForReview(ctx, uploadID, parsed, structure); err != nil {
		if errors.Is(err, review.ErrNotProcessing) {
			r.log.Info("upload left processing during structure detection", "upload_id", uploadID)
			return nil
		}
		return r.stageFailed(ctx, uploadID, domain.StageStructure, started, err)
	}
	r.stageDone(domain.StageStructure, started)
	r.log.Info("structure ready for review",
		"upload_id", uploadID,
		"modules", len(structure.Modules),
		"lessons", structure.LessonCount(),
	)
	return nil
}

// FailStructure marks the upload failed on behalf of a structure run. It
// only touches uploads still processing in stages 1 or 2, so a late failure
// cannot pull an upload out of review or past approval.
func (r *Runner) FailStructure(ctx context.Context, uploadID uuid.UUID, err error) progress.Result {
	return r.tracker.MarkErrorWhere(ctx, uploadID, curriculum.UploadGuard{
		Statuses: []domain.Status{domain.StatusProcessing},
		MaxStage: domain.StageStructure,
	}, UserMessage(err))
}

// parseStage returns the stage 1 output, reusing its checkpoint when one
// exists.
func (r *Runner) parseStage(ctx context.Context, rec *domain.UploadRecord, cfg domain.UploadConfig) (domain.ParsedContent, error) {
	var parsed domain.ParsedContent
	ok, err := rec.DecodeCheckpoint(domain.StageParse, &parsed)
	if err == nil && ok {
		r.log.Debug("reusing parse checkpoint", "upload_id", rec.ID)
		return parsed, nil
	}
	if err != nil {
		r.log.Warn("unreadable parse checkpoint; parsing again", "upload_id", rec.ID, "error", err)
	}

	started := time.Now()
	r.tracker.UpdateProgress(ctx, rec.ID, progress.Update{
		Stage:   domain.StageParse,
		Message: "Parsing source",
		Percent: pct(5),
	})
	data, err := r.readSource(ctx, rec.SourceStorageKey)
	if err != nil {
		return parsed, r.stageFailed(ctx, rec.ID, domain.StageParse, started, err)
	}
	parsed, err = parsing.ParseSource(parsing.RawPackage{
		Filename:    rec.SourceFilename,
		ContentType: rec.SourceContentType,
		Data:        data,
	})
	if err != nil {
		return parsed, r.stageFailed(ctx, rec.ID, domain.StageParse, started, err)
	}
	parsed = parsing.FilterByContentTypes(parsed, cfg.ContentTypes)
	if parsed.Text == "" {
		return parsed, r.stageFailed(ctx, rec.ID, domain.StageParse, started, ErrNoContent)
	}

	if res := r.tracker.SaveCheckpoint(ctx, rec.ID, domain.StageParse, parsed); res.Failed() {
		r.log.Warn("continuing without parse checkpoint", "upload_id", rec.ID)
	}
	r.tracker.UpdateProgress(ctx, rec.ID, progress.Update{
		Stage:   domain.StageParse,
		Message: "Source parsed",
		Percent: pct(20),
		StageData: map[string]any{
			"source_type": parsed.SourceType,
			"sections":    len(parsed.Sections),
			"characters":  len([]rune(parsed.Text)),
		},
	})
	r.stageDone(domain.StageParse, started)
	return parsed, nil
}

func (r *Runner) readSource(ctx context.Context, key string) ([]byte, error) {
	rc, err := r.store.DownloadFile(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download source: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, r.cfg.MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if int64(len(data)) > r.cfg.MaxSourceBytes {
		return nil, ErrSourceTooLarge
	}
	return data, nil
}

// PrepareRetry moves a failed upload back to processing and returns the
// stage the next run starts from: stage 3 when the structure was approved,
// otherwise stage 1. This is the one write that may lower current_stage.
func (r *Runner) PrepareRetry(ctx context.Context, uploadID uuid.UUID) (int, error) {
	rec, err := r.uploads.GetByID(dbctx.New(ctx), uploadID)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, ErrUploadNotFound
	}
	if !domain.CanTransition(rec.Status, domain.StatusProcessing) || rec.Status != domain.StatusError {
		return 0, ErrNotRetryable
	}
	stage, percent := domain.StageParse, 0
	if rec.ApprovedAt != nil && rec.Checkpoint(domain.StageStructure) != nil {
		stage, percent = domain.StageAlign, 55
	}
	changed, err := r.uploads.UpdateFieldsWhere(dbctx.New(ctx), uploadID,
		curriculum.UploadGuard{Statuses: []domain.Status{domain.StatusError}},
		map[string]interface{}{
			"status":            domain.StatusProcessing,
			"current_stage":     stage,
			"progress_percent":  percent,
			"status_message":    "Retrying",
			"error_message":     "",
			"can_resume":        false,
			"resume_from_stage": stage,
		},
	)
	if err != nil {
		return 0, err
	}
	if !changed {
		return 0, ErrNotRetryable
	}
	r.log.Info("upload retry prepared", "upload_id", uploadID, "stage", stage)
	r.tracker.Emit(ctx, uploadID, realtime.SSEEventUploadProgress, progress.Event{
		UploadID:  uploadID,
		Status:    domain.StatusProcessing,
		Stage:     stage,
		StageName: domain.StageName(stage),
		Percent:   pct(percent),
		Message:   "Retrying",
	})
	return stage, nil
}
