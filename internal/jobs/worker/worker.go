package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jobrepo "github.com/optio-learning/optio-backend/internal/data/repos/jobs"
	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	"github.com/optio-learning/optio-backend/internal/jobs/runtime"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
	PollInterval time.Duration
	// HeartbeatInterval must stay well below StaleRunning or running jobs
	// get reclaimed by another worker.
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 10 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

type Worker struct {
	log      *logger.Logger
	repo     jobrepo.JobRunRepo
	registry *runtime.Registry
	notify   runtime.Notifier
	metrics  *observability.Metrics
	cfg      Config
	wg       sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, repo jobrepo.JobRunRepo, registry *runtime.Registry, notify runtime.Notifier, metrics *observability.Metrics, cfg Config) *Worker {
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
	}
}

// Start launches the poll loops. They stop when ctx is done; Wait blocks
// until every in-flight job has returned.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"max_attempts", w.cfg.MaxAttempts,
		"job_types", w.registry.Types(),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			if workerID == 1 {
				w.ReapStale(ctx)
			}
			// Drain the queue before waiting for the next tick.
			for ctx.Err() == nil && w.RunOnce(ctx, workerID) {
			}
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job was
// claimed.
func (w *Worker) RunOnce(ctx context.Context, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(dbctx.New(ctx), w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}
	w.execute(ctx, workerID, job)
	return true
}

// ReapStale fails jobs that went stale on their last attempt and lets their
// handlers clean up. It returns how many jobs were reaped.
func (w *Worker) ReapStale(ctx context.Context) int {
	reaped, err := w.repo.ReapStale(dbctx.New(ctx), w.cfg.MaxAttempts, w.cfg.StaleRunning, errHeartbeatLost.Error())
	if err != nil {
		w.log.Warn("ReapStale failed", "error", err)
	}
	for _, job := range reaped {
		w.log.Warn("Reaped stale job", "job_id", job.ID, "job_type", job.JobType, "attempts", job.Attempts)
		w.metrics.IncJob(job.JobType, "abandoned")
		if w.notify != nil {
			w.notify.JobFailed(job.OwnerUserID, job, failStage(job), job.Error)
		}
		h, ok := w.registry.Get(job.JobType)
		if !ok {
			continue
		}
		if a, ok := h.(runtime.Abandoner); ok {
			a.Abandon(runtime.NewContext(ctx, job, w.repo, w.notify, w.cfg.MaxAttempts), errHeartbeatLost)
		}
	}
	return len(reaped)
}

func (w *Worker) execute(ctx context.Context, workerID int, job *jobs.JobRun) {
	log := w.log.With("worker_id", workerID, "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	jc := runtime.NewContext(ctx, job, w.repo, w.notify, w.cfg.MaxAttempts)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", runtime.Permanent(&missingHandlerError{JobType: job.JobType}))
		w.metrics.IncJob(job.JobType, "unknown_type")
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(hbCtx, job)

	started := time.Now()
	runErr := w.run(log, h, jc)
	switch {
	case runErr == nil:
		if job.Status == jobs.StatusRunning {
			jc.Succeed("done", nil)
		}
		w.metrics.IncJob(job.JobType, "succeeded")
		log.Info("Job finished", "took", time.Since(started).String())
	default:
		jc.Fail(failStage(job), runErr)
		outcome := "retry"
		if runtime.IsPermanent(runErr) || jc.LastAttempt() {
			outcome = "failed"
		}
		w.metrics.IncJob(job.JobType, outcome)
		log.Warn("Job failed", "error", runErr, "outcome", outcome, "took", time.Since(started).String())
	}
}

func (w *Worker) run(log *logger.Logger, h runtime.Handler, jc *runtime.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job handler panic", "panic", r)
			err = &panicError{Val: r}
		}
	}()
	return h.Run(jc)
}

func (w *Worker) heartbeat(ctx context.Context, job *jobs.JobRun) {
	t := time.NewTicker(w.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.repo.Heartbeat(dbctx.New(ctx), job.ID); err != nil && ctx.Err() == nil {
				w.log.Warn("Job heartbeat failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

func failStage(job *jobs.JobRun) string {
	if job.Stage == "" || job.Stage == "queued" {
		return "run"
	}
	return job.Stage
}

var errHeartbeatLost = errors.New("worker stopped heartbeating; attempts exhausted")

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

type panicError struct{ Val any }

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Val)
}
