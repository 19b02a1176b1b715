package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/optio-learning/optio-backend/internal/domain/course"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/content"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
)

// RunTopic generates a course from a topic alone and persists it. No upload
// record is involved.
func (r *Runner) RunTopic(ctx context.Context, ownerUserID uuid.UUID, topic string, objectives []string) (out *course.Course, err error) {
	ctx, span := observability.StartSpan(ctx, "curriculum.pipeline.topic", attribute.String("topic", topic))
	defer func() { observability.EndSpan(span, err) }()

	started := time.Now()
	fail := func(err error) error {
		r.metrics.ObserveStage("topic", "error", time.Since(started))
		return &StageError{Stage: domain.StageGenerate, Permanent: permanent(err), Err: err}
	}

	gen, err := r.ai.GenerateFromTopic(ctx, topic, objectives)
	if err != nil {
		return nil, fail(err)
	}
	c, err := content.BuildCourse(gen, content.BuildInput{
		OwnerUserID: ownerUserID,
		Source:      course.SourceTopic,
		Metadata: map[string]any{
			"topic":               strings.TrimSpace(topic),
			"learning_objectives": objectives,
		},
	})
	if err != nil {
		return nil, fail(err)
	}
	if err := r.courses.CreateTree(dbctx.New(ctx), c); err != nil {
		return nil, fail(err)
	}
	r.metrics.ObserveStage("topic", "ok", time.Since(started))
	r.log.Info("course generated from topic", "course_id", c.ID, "quests", len(c.Quests))
	return c, nil
}
