package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	"github.com/optio-learning/optio-backend/internal/data/repos/testutil"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (p *recordingPublisher) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) events() []realtime.SSEEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.SSEEvent
	for _, m := range p.msgs {
		out = append(out, m.Event)
	}
	return out
}

func newTracker(t *testing.T) (*Tracker, *gorm.DB, *recordingPublisher) {
	t.Helper()
	db := testutil.DB(t)
	pub := &recordingPublisher{}
	repo := curriculum.NewUploadRepo(db, testutil.Logger(t))
	return NewTracker(testutil.Logger(t), repo, pub, nil), db, pub
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) *domain.UploadRecord {
	t.Helper()
	rec, err := curriculum.NewUploadRepo(db, testutil.Logger(t)).GetByID(dbctx.New(context.Background()), id)
	if err != nil || rec == nil {
		t.Fatalf("reload upload: rec=%v err=%v", rec, err)
	}
	return rec
}

func intp(i int) *int { return &i }

func TestSaveCheckpoint(t *testing.T) {
	tr, db, _ := newTracker(t)
	ctx := context.Background()
	rec := testutil.SeedUpload(t, db, domain.StatusProcessing, domain.StageParse, nil)

	parsed := domain.ParsedContent{Text: "hello", SourceType: "text"}
	if res := tr.SaveCheckpoint(ctx, rec.ID, domain.StageParse, parsed); !res.OK {
		t.Fatalf("SaveCheckpoint = %+v", res)
	}
	got := reload(t, db, rec.ID)
	var decoded domain.ParsedContent
	ok, err := got.DecodeCheckpoint(domain.StageParse, &decoded)
	if err != nil || !ok || decoded.Text != "hello" {
		t.Fatalf("checkpoint not stored: ok=%v err=%v decoded=%+v", ok, err, decoded)
	}
	if got.Status != domain.StatusProcessing {
		t.Fatalf("checkpoint changed status to %s", got.Status)
	}

	if res := tr.SaveCheckpoint(ctx, rec.ID, 7, parsed); res.Err == nil {
		t.Fatalf("expected error for invalid stage")
	}

	done := testutil.SeedUpload(t, db, domain.StatusRejected, domain.StageStructure, nil)
	if res := tr.SaveCheckpoint(ctx, done.ID, domain.StageAlign, parsed); !res.Skipped {
		t.Fatalf("checkpoint on rejected upload = %+v, want skipped", res)
	}
}

func TestUpdateProgress(t *testing.T) {
	tr, db, pub := newTracker(t)
	ctx := context.Background()
	rec := testutil.SeedUpload(t, db, domain.StatusProcessing, domain.StageStructure, nil)

	res := tr.UpdateProgress(ctx, rec.ID, Update{Stage: domain.StageStructure, Message: "Detecting structure", Percent: intp(140)})
	if !res.OK {
		t.Fatalf("UpdateProgress = %+v", res)
	}
	got := reload(t, db, rec.ID)
	if got.ProgressPercent != 100 || got.StatusMessage != "Detecting structure" {
		t.Fatalf("progress not written: %+v", got)
	}

	if res := tr.UpdateProgress(ctx, rec.ID, Update{Stage: domain.StageParse, Percent: intp(5)}); !res.Skipped {
		t.Fatalf("stage regression = %+v, want skipped", res)
	}

	if res := tr.UpdateProgress(ctx, rec.ID, Update{Status: domain.StatusReadyForReview}); !res.OK {
		t.Fatalf("processing -> ready_for_review = %+v", res)
	}
	if res := tr.UpdateProgress(ctx, rec.ID, Update{Status: domain.StatusProcessing, Stage: domain.StageAlign}); !res.Skipped {
		t.Fatalf("progress write must not leave review: %+v", res)
	}
	if res := tr.UpdateProgress(ctx, rec.ID, Update{Status: domain.StatusComplete}); !res.Skipped {
		t.Fatalf("ready_for_review -> complete = %+v, want skipped", res)
	}
	if got := reload(t, db, rec.ID); got.Status != domain.StatusReadyForReview || got.CurrentStage != domain.StageStructure {
		t.Fatalf("status/stage = %s/%d", got.Status, got.CurrentStage)
	}

	if res := tr.UpdateProgress(ctx, rec.ID, Update{Status: "bogus"}); res.Err == nil {
		t.Fatalf("expected error for invalid status")
	}

	want := []realtime.SSEEvent{realtime.SSEEventUploadProgress, realtime.SSEEventUploadReadyForReview}
	got2 := pub.events()
	if len(got2) != len(want) || got2[0] != want[0] || got2[1] != want[1] {
		t.Fatalf("events = %v, want %v", got2, want)
	}
}

func TestMarkError(t *testing.T) {
	tr, db, pub := newTracker(t)
	ctx := context.Background()
	rec := testutil.SeedUpload(t, db, domain.StatusProcessing, domain.StageAlign, nil)

	if res := tr.MarkError(ctx, rec.ID, "model unavailable"); !res.OK {
		t.Fatalf("MarkError = %+v", res)
	}
	got := reload(t, db, rec.ID)
	if got.Status != domain.StatusError || got.ErrorMessage != "model unavailable" {
		t.Fatalf("status = %s message = %q", got.Status, got.ErrorMessage)
	}
	if !got.CanResume || got.ResumeFromStage != domain.StageAlign {
		t.Fatalf("resume = %v from %d", got.CanResume, got.ResumeFromStage)
	}
	if ev := pub.events(); len(ev) != 1 || ev[0] != realtime.SSEEventUploadError {
		t.Fatalf("events = %v", ev)
	}

	finished := testutil.SeedUpload(t, db, domain.StatusComplete, domain.StageGenerate, nil)
	if res := tr.MarkError(ctx, finished.ID, "late failure"); !res.Skipped {
		t.Fatalf("MarkError on complete upload = %+v, want skipped", res)
	}
	if got := reload(t, db, finished.ID); got.Status != domain.StatusComplete {
		t.Fatalf("complete upload moved to %s", got.Status)
	}
}

type failingRepo struct {
	curriculum.UploadRepo
}

func (failingRepo) UpdateFieldsWhere(dbctx.Context, uuid.UUID, curriculum.UploadGuard, map[string]interface{}) (bool, error) {
	return false, errors.New("connection reset")
}

func TestWriteFailuresAreReported(t *testing.T) {
	tr := NewTracker(testutil.Logger(t), failingRepo{}, nil, nil)
	ctx := context.Background()
	id := uuid.New()

	results := []Result{
		tr.SaveCheckpoint(ctx, id, domain.StageParse, map[string]string{"a": "b"}),
		tr.UpdateProgress(ctx, id, Update{Stage: domain.StageParse, Percent: intp(10)}),
		tr.MarkError(ctx, id, "boom"),
	}
	for i, r := range results {
		if !r.Failed() || r.OK {
			t.Fatalf("result %d = %+v, want failure", i, r)
		}
	}
}
