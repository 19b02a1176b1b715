package curriculum_structure

import (
	"context"

	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

// Runner is the part of the curriculum pipeline this job drives.
type Runner interface {
	RunStructure(ctx context.Context, uploadID uuid.UUID) error
	FailStructure(ctx context.Context, uploadID uuid.UUID, err error) progress.Result
}

type Pipeline struct {
	log    *logger.Logger
	runner Runner
}

func New(baseLog *logger.Logger, runner Runner) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", jobs.TypeCurriculumStructure),
		runner: runner,
	}
}

func (p *Pipeline) Type() string { return jobs.TypeCurriculumStructure }
