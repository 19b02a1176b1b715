package course_from_topic

import (
	"context"

	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/domain/course"
	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

type Runner interface {
	RunTopic(ctx context.Context, ownerUserID uuid.UUID, topic string, objectives []string) (*course.Course, error)
}

type Pipeline struct {
	log    *logger.Logger
	runner Runner
}

func New(baseLog *logger.Logger, runner Runner) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", jobs.TypeCourseFromTopic),
		runner: runner,
	}
}

func (p *Pipeline) Type() string { return jobs.TypeCourseFromTopic }
