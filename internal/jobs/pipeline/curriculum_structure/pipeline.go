package curriculum_structure

import (
	"fmt"

	"github.com/google/uuid"

	jobrt "github.com/optio-learning/optio-backend/internal/jobs/runtime"
	curriculumpipe "github.com/optio-learning/optio-backend/internal/modules/curriculum/pipeline"
)

// Run parses the upload and detects its structure, leaving it ready for
// review. Transient failures are retried by the worker; the upload is
// marked failed once the last attempt fails.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	uploadID, ok := jc.PayloadUUID("upload_id")
	if !ok {
		return jobrt.Permanent(fmt.Errorf("missing upload_id"))
	}

	jc.Progress("structure", 5, "Parsing source and detecting structure")
	if err := p.runner.RunStructure(jc.Ctx, uploadID); err != nil {
		return p.failed(jc, uploadID, err)
	}
	jc.Succeed("done", map[string]any{"upload_id": uploadID.String()})
	return nil
}

func (p *Pipeline) failed(jc *jobrt.Context, uploadID uuid.UUID, err error) error {
	if curriculumpipe.IsPermanent(err) {
		return jobrt.Permanent(err)
	}
	if jc.LastAttempt() {
		p.log.Warn("retries exhausted; marking upload failed", "upload_id", uploadID, "error", err)
		p.runner.FailStructure(jc.Ctx, uploadID, err)
	}
	return err
}

// Abandon marks the upload failed after the worker lost a run on its last
// attempt, so the user can retry it. An upload the lost run already parked
// for review stays there.
func (p *Pipeline) Abandon(jc *jobrt.Context, err error) {
	uploadID, ok := jc.PayloadUUID("upload_id")
	if !ok {
		return
	}
	p.log.Warn("run abandoned; marking upload failed", "upload_id", uploadID, "error", err)
	p.runner.FailStructure(jc.Ctx, uploadID, err)
}
