package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/jobs/pipeline/course_from_topic"
	"github.com/optio-learning/optio-backend/internal/jobs/pipeline/curriculum_generate"
	"github.com/optio-learning/optio-backend/internal/jobs/pipeline/curriculum_structure"
	"github.com/optio-learning/optio-backend/internal/jobs/runtime"
	"github.com/optio-learning/optio-backend/internal/jobs/worker"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/ai"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/pipeline"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/review"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/platform/objectstore"
	"github.com/optio-learning/optio-backend/internal/platform/openai"
	"github.com/optio-learning/optio-backend/internal/services"
)

type Services struct {
	Store    objectstore.Store
	Tracker  *progress.Tracker
	Review   *review.Service
	Pipeline *pipeline.Runner
	Notifier runtime.Notifier
	Jobs     services.JobService
	Uploads  services.UploadService
	Courses  services.CourseService
}

func wireServices(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, pub progress.Publisher, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	var out Services

	store, err := objectstore.New(ctx, log, cfg.Storage)
	if err != nil {
		return out, fmt.Errorf("init object storage: %w", err)
	}
	out.Store = store

	llm, err := openai.NewClient(log, metrics, openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Timeout:     cfg.OpenAI.Timeout,
		MaxRetries:  cfg.OpenAI.MaxRetries,
		Temperature: float32(cfg.OpenAI.Temperature),
	})
	if err != nil {
		return out, fmt.Errorf("init openai: %w", err)
	}
	aiService := ai.NewService(log, llm, metrics, ai.Config{
		MaxChunkChars:      cfg.Pipeline.MaxChunkChars,
		ChunkWorkers:       cfg.Pipeline.ChunkWorkers,
		SummaryChars:       cfg.Pipeline.SummaryChars,
		GenerationAttempts: cfg.Pipeline.GenerationAttempts,
	})

	out.Tracker = progress.NewTracker(log, repos.Uploads, pub, metrics)
	out.Review = review.NewService(log, repos.Uploads, out.Tracker, metrics)
	out.Pipeline = pipeline.NewRunner(log, pipeline.Deps{
		DB:      db,
		Uploads: repos.Uploads,
		Courses: repos.Courses,
		Store:   store,
		AI:      aiService,
		Review:  out.Review,
		Tracker: out.Tracker,
		Metrics: metrics,
	}, pipeline.Config{MaxSourceBytes: cfg.Server.MaxUploadBytes})

	out.Notifier = services.NewJobNotifier(log, pub)
	out.Jobs = services.NewJobService(log, repos.JobRuns, out.Notifier)
	out.Uploads = services.NewUploadService(db, log, repos.Uploads, store, out.Jobs, out.Review, out.Pipeline, services.UploadServiceConfig{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	out.Courses = services.NewCourseService(log, repos.Courses, out.Jobs)
	return out, nil
}

func wireWorker(log *logger.Logger, cfg Config, repos Repos, svcs Services, metrics *observability.Metrics) (*worker.Worker, error) {
	registry := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		curriculum_structure.New(log, svcs.Pipeline),
		curriculum_generate.New(log, svcs.Pipeline),
		course_from_topic.New(log, svcs.Pipeline),
	} {
		if err := registry.Register(h); err != nil {
			return nil, fmt.Errorf("register job handler: %w", err)
		}
	}
	return worker.NewWorker(log, repos.JobRuns, registry, svcs.Notifier, metrics, worker.Config{
		Concurrency:       cfg.Worker.Concurrency,
		MaxAttempts:       cfg.Worker.MaxAttempts,
		RetryDelay:        cfg.Worker.RetryDelay,
		StaleRunning:      cfg.Worker.StaleRunning,
		PollInterval:      cfg.Worker.PollInterval,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	}), nil
}
