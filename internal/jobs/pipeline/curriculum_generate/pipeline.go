package curriculum_generate

import (
	"fmt"

	jobrt "github.com/optio-learning/optio-backend/internal/jobs/runtime"
	curriculumpipe "github.com/optio-learning/optio-backend/internal/modules/curriculum/pipeline"
)

// Run aligns and generates an approved upload and persists its course.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	uploadID, ok := jc.PayloadUUID("upload_id")
	if !ok {
		return jobrt.Permanent(fmt.Errorf("missing upload_id"))
	}

	jc.Progress("generate", 5, "Aligning and generating course content")
	if err := p.runner.RunGeneration(jc.Ctx, uploadID); err != nil {
		if curriculumpipe.IsPermanent(err) {
			return jobrt.Permanent(err)
		}
		if jc.LastAttempt() {
			p.log.Warn("retries exhausted; marking upload failed", "upload_id", uploadID, "error", err)
			p.runner.Fail(jc.Ctx, uploadID, err)
		}
		return err
	}
	jc.Succeed("done", map[string]any{"upload_id": uploadID.String()})
	return nil
}

// Abandon marks the upload failed after the worker lost a run on its last
// attempt, so the user can retry it.
func (p *Pipeline) Abandon(jc *jobrt.Context, err error) {
	uploadID, ok := jc.PayloadUUID("upload_id")
	if !ok {
		return
	}
	p.log.Warn("run abandoned; marking upload failed", "upload_id", uploadID, "error", err)
	p.runner.Fail(jc.Ctx, uploadID, err)
}
