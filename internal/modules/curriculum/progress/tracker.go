// Package progress records stage checkpoints and progress for curriculum
// uploads. Every write is best effort: failures are reported in the
// returned Result and never abort the pipeline.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

// Result reports the outcome of a best-effort write. Skipped means the row
// was not in a state that accepts the write.
type Result struct {
	OK      bool
	Skipped bool
	Err     error
}

func (r Result) Failed() bool { return r.Err != nil }

// Publisher delivers realtime messages; bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
}

// Update describes a progress write. Zero fields are left unchanged.
type Update struct {
	Stage     int
	Status    domain.Status
	Message   string
	Percent   *int
	StageData map[string]any
}

// Event is the payload of upload realtime messages.
type Event struct {
	UploadID  uuid.UUID     `json:"upload_id"`
	Status    domain.Status `json:"status,omitempty"`
	Stage     int           `json:"stage,omitempty"`
	StageName string        `json:"stage_name,omitempty"`
	Percent   *int          `json:"progress_percent,omitempty"`
	Message   string        `json:"message,omitempty"`
	CourseID  *uuid.UUID    `json:"course_id,omitempty"`
}

type Tracker struct {
	log     *logger.Logger
	uploads curriculum.UploadRepo
	pub     Publisher
	metrics *observability.Metrics
}

func NewTracker(log *logger.Logger, uploads curriculum.UploadRepo, pub Publisher, metrics *observability.Metrics) *Tracker {
	return &Tracker{
		log:     log.With("service", "ProgressTracker"),
		uploads: uploads,
		pub:     pub,
		metrics: metrics,
	}
}

// SaveCheckpoint stores a stage's output. It applies only while the upload
// is processing and never changes status.
func (t *Tracker) SaveCheckpoint(ctx context.Context, uploadID uuid.UUID, stage int, output any) Result {
	col, ok := domain.CheckpointColumn(stage)
	if !ok {
		return t.fail("checkpoint", uploadID, fmt.Errorf("invalid stage %d", stage))
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return t.fail("checkpoint", uploadID, fmt.Errorf("encode stage %d checkpoint: %w", stage, err))
	}
	changed, err := t.uploads.UpdateFieldsWhere(dbctx.New(ctx), uploadID,
		curriculum.UploadGuard{Statuses: []domain.Status{domain.StatusProcessing}},
		map[string]interface{}{col: datatypes.JSON(raw)},
	)
	if err != nil {
		return t.fail("checkpoint", uploadID, err)
	}
	if !changed {
		t.log.Warn("checkpoint skipped; upload not processing", "upload_id", uploadID, "stage", stage)
		return Result{Skipped: true}
	}
	return Result{OK: true}
}

// UpdateProgress writes stage, status and progress fields. A status change
// applies only from a legal source status, and the stage never moves
// backwards. Without a status the upload must be processing.
func (t *Tracker) UpdateProgress(ctx context.Context, uploadID uuid.UUID, u Update) Result {
	updates := map[string]interface{}{}
	guard := curriculum.UploadGuard{Statuses: []domain.Status{domain.StatusProcessing}}
	if u.Status != "" {
		if !u.Status.Valid() {
			return t.fail("progress", uploadID, fmt.Errorf("invalid status %q", u.Status))
		}
		// Leaving review or error is owned by the review and retry paths.
		if u.Status != domain.StatusProcessing {
			guard.Statuses = domain.SourcesFor(u.Status)
		}
		updates["status"] = u.Status
	}
	if u.Stage > 0 {
		if u.Stage > domain.StageGenerate {
			return t.fail("progress", uploadID, fmt.Errorf("invalid stage %d", u.Stage))
		}
		updates["current_stage"] = u.Stage
		guard.MaxStage = u.Stage
	}
	if msg := strings.TrimSpace(u.Message); msg != "" {
		updates["status_message"] = msg
	}
	if u.Percent != nil {
		p := clampPercent(*u.Percent)
		u.Percent = &p
		updates["progress_percent"] = p
	}
	if u.StageData != nil {
		raw, err := json.Marshal(u.StageData)
		if err != nil {
			return t.fail("progress", uploadID, fmt.Errorf("encode stage data: %w", err))
		}
		updates["stage_data"] = datatypes.JSON(raw)
	}
	if len(updates) == 0 {
		return Result{Skipped: true}
	}

	changed, err := t.uploads.UpdateFieldsWhere(dbctx.New(ctx), uploadID, guard, updates)
	if err != nil {
		return t.fail("progress", uploadID, err)
	}
	if !changed {
		t.log.Warn("progress update skipped",
			"upload_id", uploadID,
			"stage", u.Stage,
			"status", u.Status,
		)
		return Result{Skipped: true}
	}
	t.Emit(ctx, uploadID, eventFor(u.Status), Event{
		UploadID:  uploadID,
		Status:    u.Status,
		Stage:     u.Stage,
		StageName: domain.StageName(u.Stage),
		Percent:   u.Percent,
		Message:   u.Message,
	})
	return Result{OK: true}
}

// MarkError moves a live upload to error. The upload can be retried from
// the stage that failed.
func (t *Tracker) MarkError(ctx context.Context, uploadID uuid.UUID, message string) Result {
	return t.MarkErrorWhere(ctx, uploadID, curriculum.UploadGuard{Statuses: domain.SourcesFor(domain.StatusError)}, message)
}

// MarkErrorWhere is MarkError restricted to uploads matching guard.
func (t *Tracker) MarkErrorWhere(ctx context.Context, uploadID uuid.UUID, guard curriculum.UploadGuard, message string) Result {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "processing failed"
	}
	changed, err := t.uploads.UpdateFieldsWhere(dbctx.New(ctx), uploadID, guard,
		map[string]interface{}{
			"status":            domain.StatusError,
			"error_message":     message,
			"status_message":    "Processing failed",
			"can_resume":        true,
			"resume_from_stage": gorm.Expr("current_stage"),
		},
	)
	if err != nil {
		return t.fail("error", uploadID, err)
	}
	if !changed {
		t.log.Warn("mark error skipped; upload not live", "upload_id", uploadID)
		return Result{Skipped: true}
	}
	t.log.Info("upload marked error", "upload_id", uploadID, "error", message)
	t.Emit(ctx, uploadID, realtime.SSEEventUploadError, Event{
		UploadID: uploadID,
		Status:   domain.StatusError,
		Message:  message,
	})
	return Result{OK: true}
}

// Emit publishes an upload event. Delivery failures are logged only.
func (t *Tracker) Emit(ctx context.Context, uploadID uuid.UUID, event realtime.SSEEvent, data any) {
	if t.pub == nil {
		return
	}
	msg := realtime.SSEMessage{Channel: realtime.UploadChannel(uploadID), Event: event, Data: data}
	if err := t.pub.Publish(ctx, msg); err != nil {
		t.log.Warn("upload event publish failed", "upload_id", uploadID, "event", event, "error", err)
	}
}

func (t *Tracker) fail(kind string, uploadID uuid.UUID, err error) Result {
	t.metrics.IncProgressWriteFailure(kind)
	t.log.Warn("progress write failed", "kind", kind, "upload_id", uploadID, "error", err)
	return Result{Err: err}
}

func eventFor(s domain.Status) realtime.SSEEvent {
	switch s {
	case domain.StatusReadyForReview:
		return realtime.SSEEventUploadReadyForReview
	case domain.StatusComplete:
		return realtime.SSEEventUploadComplete
	case domain.StatusRejected:
		return realtime.SSEEventUploadRejected
	case domain.StatusError:
		return realtime.SSEEventUploadError
	default:
		return realtime.SSEEventUploadProgress
	}
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
