package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	"github.com/optio-learning/optio-backend/internal/jobs/runtime"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

const publishTimeout = 3 * time.Second

type jobNotifier struct {
	log *logger.Logger
	pub progress.Publisher
}

// NewJobNotifier publishes job lifecycle events on the owner's user channel.
func NewJobNotifier(log *logger.Logger, pub progress.Publisher) runtime.Notifier {
	return &jobNotifier{log: log.With("service", "JobNotifier"), pub: pub}
}

func (n *jobNotifier) publish(userID uuid.UUID, event realtime.SSEEvent, data map[string]any) {
	if n.pub == nil || userID == uuid.Nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := n.pub.Publish(ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(userID),
		Event:   event,
		Data:    data,
	})
	if err != nil {
		n.log.Warn("publish job event failed", "event", event, "error", err)
	}
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *jobs.JobRun) {
	n.publish(userID, realtime.SSEEventJobCreated, map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *jobs.JobRun, stage string, progress int, message string) {
	n.publish(userID, realtime.SSEEventJobProgress, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *jobs.JobRun, stage string, errorMessage string) {
	n.publish(userID, realtime.SSEEventJobFailed, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"error":    errorMessage,
		"attempts": job.Attempts,
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *jobs.JobRun) {
	n.publish(userID, realtime.SSEEventJobDone, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"job":      job,
	})
}
