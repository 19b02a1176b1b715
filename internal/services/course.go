package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	"github.com/optio-learning/optio-backend/internal/domain/course"
	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	"github.com/optio-learning/optio-backend/internal/platform/apierr"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

const maxTopicRunes = 500

type CourseService interface {
	// GenerateFromTopic queues a course built from a topic alone.
	GenerateFromTopic(ctx context.Context, ownerUserID uuid.UUID, topic string, objectives []string) (*jobs.JobRun, error)
	GetForOwner(ctx context.Context, ownerUserID, courseID uuid.UUID) (*course.Course, error)
}

type courseService struct {
	log     *logger.Logger
	courses curriculum.CourseRepo
	jobs    JobService
}

func NewCourseService(baseLog *logger.Logger, courses curriculum.CourseRepo, jobs JobService) CourseService {
	return &courseService{
		log:     baseLog.With("service", "CourseService"),
		courses: courses,
		jobs:    jobs,
	}
}

func (s *courseService) GenerateFromTopic(ctx context.Context, ownerUserID uuid.UUID, topic string, objectives []string) (*jobs.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", nil)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, apierr.BadRequest("missing_topic", fmt.Errorf("topic is required"))
	}
	if utf8.RuneCountInString(topic) > maxTopicRunes {
		return nil, apierr.BadRequest("topic_too_long", fmt.Errorf("topic must be at most %d characters", maxTopicRunes))
	}
	objectives, err := cleanObjectives(objectives)
	if err != nil {
		return nil, apierr.BadRequest("invalid_objectives", err)
	}
	if len(objectives) > maxLearningObjectives {
		return nil, apierr.BadRequest("too_many_objectives", fmt.Errorf("at most %d learning objectives are supported", maxLearningObjectives))
	}
	payload := map[string]any{"topic": topic}
	if len(objectives) > 0 {
		payload["learning_objectives"] = objectives
	}
	job, err := s.jobs.Enqueue(dbctx.New(ctx), ownerUserID, jobs.TypeCourseFromTopic, "", nil, payload)
	if err != nil {
		return nil, fmt.Errorf("queue topic generation: %w", err)
	}
	s.log.Info("topic course queued", "job_id", job.ID, "objectives", len(objectives))
	return job, nil
}

func (s *courseService) GetForOwner(ctx context.Context, ownerUserID, courseID uuid.UUID) (*course.Course, error) {
	c, err := s.courses.GetTree(dbctx.New(ctx), courseID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.OwnerUserID != ownerUserID {
		return nil, apierr.NotFound("course_not_found", fmt.Errorf("course %s not found", courseID))
	}
	return c, nil
}
