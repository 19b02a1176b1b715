package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepo "github.com/optio-learning/optio-backend/internal/data/repos/jobs"
	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	"github.com/optio-learning/optio-backend/internal/jobs/runtime"
	"github.com/optio-learning/optio-backend/internal/platform/ctxutil"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*jobs.JobRun, error)
	// GetForOwner returns nil, nil when the job does not exist or belongs to
	// someone else.
	GetForOwner(dbc dbctx.Context, ownerUserID, jobID uuid.UUID) (*jobs.JobRun, error)
	GetLatestForEntity(dbc dbctx.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*jobs.JobRun, error)
}

type jobService struct {
	log    *logger.Logger
	repo   jobrepo.JobRunRepo
	notify runtime.Notifier
}

func NewJobService(baseLog *logger.Logger, repo jobrepo.JobRunRepo, notify runtime.Notifier) JobService {
	return &jobService{
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		notify: notify,
	}
}

// Enqueue persists a queued job for the worker pool. Trace ids of the
// calling request travel in the payload so worker logs can be joined with
// the request that caused them.
func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*jobs.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(ctxutil.Default(dbc.Ctx)); td != nil {
		if _, ok := payload["trace_id"]; !ok && td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if _, ok := payload["request_id"]; !ok && td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	now := time.Now()
	job := &jobs.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      jobs.StatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(b),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(dbc, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Debug("Job enqueued", "job_id", job.ID, "job_type", jobType, "entity_id", entityID)
	if s.notify != nil {
		s.notify.JobCreated(ownerUserID, job)
	}
	return job, nil
}

func (s *jobService) GetForOwner(dbc dbctx.Context, ownerUserID, jobID uuid.UUID) (*jobs.JobRun, error) {
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	if job.OwnerUserID != ownerUserID {
		return nil, nil
	}
	return job, nil
}

func (s *jobService) GetLatestForEntity(dbc dbctx.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*jobs.JobRun, error) {
	job, err := s.repo.GetLatestByEntity(dbc, entityType, entityID, jobType)
	if err != nil || job == nil {
		return nil, err
	}
	if job.OwnerUserID != ownerUserID {
		return nil, nil
	}
	return job, nil
}
