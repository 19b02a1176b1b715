// Package pipeline runs the four curriculum ingestion stages against a
// persisted upload. Every run re-reads the upload row and resumes from the
// checkpoints it finds, so a run can be repeated safely after a crash.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/review"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

// SourceStore reads uploaded source files. Missing keys yield an error
// wrapping fs.ErrNotExist.
type SourceStore interface {
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
}

// CurriculumAI is the model-backed part of the pipeline.
type CurriculumAI interface {
	DetectStructure(ctx context.Context, parsed domain.ParsedContent) (domain.StructureResult, error)
	AlignPhilosophy(ctx context.Context, structure domain.StructureResult, level domain.TransformationLevel, preserve bool) (domain.AlignmentResult, error)
	GenerateCourseContent(ctx context.Context, aligned domain.AlignmentResult, objectives []string) (domain.GenerationResult, error)
	GenerateFromTopic(ctx context.Context, topic string, objectives []string) (domain.GenerationResult, error)
}

type Config struct {
	MaxSourceBytes int64
}

const defaultMaxSourceBytes = 50 << 20

type Runner struct {
	log     *logger.Logger
	db      *gorm.DB
	uploads curriculum.UploadRepo
	courses curriculum.CourseRepo
	store   SourceStore
	ai      CurriculumAI
	review  *review.Service
	tracker *progress.Tracker
	metrics *observability.Metrics
	cfg     Config
}

type Deps struct {
	DB      *gorm.DB
	Uploads curriculum.UploadRepo
	Courses curriculum.CourseRepo
	Store   SourceStore
	AI      CurriculumAI
	Review  *review.Service
	Tracker *progress.Tracker
	Metrics *observability.Metrics
}

func NewRunner(log *logger.Logger, deps Deps, cfg Config) *Runner {
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = defaultMaxSourceBytes
	}
	return &Runner{
		log:     log.With("service", "CurriculumPipeline"),
		db:      deps.DB,
		uploads: deps.Uploads,
		courses: deps.Courses,
		store:   deps.Store,
		ai:      deps.AI,
		review:  deps.Review,
		tracker: deps.Tracker,
		metrics: deps.Metrics,
		cfg:     cfg,
	}
}

// Fail marks the upload as failed after retries are exhausted.
func (r *Runner) Fail(ctx context.Context, uploadID uuid.UUID, err error) progress.Result {
	return r.tracker.MarkError(ctx, uploadID, UserMessage(err))
}

// stageFailed classifies err. Permanent failures mark the upload at once;
// transient ones leave it for the caller to retry.
func (r *Runner) stageFailed(ctx context.Context, uploadID uuid.UUID, stage int, started time.Time, err error) error {
	se := &StageError{Stage: stage, Err: err, Permanent: permanent(err)}
	outcome := "transient_error"
	if se.Permanent {
		outcome = "error"
		if res := r.tracker.MarkError(ctx, uploadID, UserMessage(err)); res.Failed() {
			// The upload row stays processing; the job retry will mark it.
			se.Permanent = false
		}
	}
	r.metrics.ObserveStage(domain.StageName(stage), outcome, time.Since(started))
	r.log.Warn("pipeline stage failed",
		"upload_id", uploadID,
		"stage", stage,
		"permanent", se.Permanent,
		"error", err,
	)
	return se
}

func (r *Runner) stageDone(stage int, started time.Time) {
	r.metrics.ObserveStage(domain.StageName(stage), "ok", time.Since(started))
}

func pct(p int) *int { return &p }
