package course_from_topic

import (
	"fmt"

	jobrt "github.com/optio-learning/optio-backend/internal/jobs/runtime"
	curriculumpipe "github.com/optio-learning/optio-backend/internal/modules/curriculum/pipeline"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	topic := jc.PayloadString("topic")
	if topic == "" {
		return jobrt.Permanent(fmt.Errorf("missing topic"))
	}
	objectives := jc.PayloadStrings("learning_objectives")

	jc.Progress("generate", 10, "Generating course from topic")
	c, err := p.runner.RunTopic(jc.Ctx, jc.Job.OwnerUserID, topic, objectives)
	if err != nil {
		if curriculumpipe.IsPermanent(err) {
			return jobrt.Permanent(err)
		}
		return err
	}
	p.log.Info("topic course created", "course_id", c.ID, "owner_user_id", jc.Job.OwnerUserID)
	jc.Succeed("done", map[string]any{
		"course_id": c.ID.String(),
		"quests":    len(c.Quests),
	})
	return nil
}
