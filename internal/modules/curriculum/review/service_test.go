package review

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	"github.com/optio-learning/optio-backend/internal/data/repos/testutil"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := curriculum.NewUploadRepo(db, log)
	return NewService(log, repo, progress.NewTracker(log, repo, nil, nil), nil), db
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) *domain.UploadRecord {
	t.Helper()
	rec, err := curriculum.NewUploadRepo(db, testutil.Logger(t)).GetByID(dbctx.New(context.Background()), id)
	if err != nil || rec == nil {
		t.Fatalf("reload: rec=%v err=%v", rec, err)
	}
	return rec
}

func decodeStructure(t *testing.T, rec *domain.UploadRecord) domain.StructureResult {
	t.Helper()
	var s domain.StructureResult
	ok, err := rec.DecodeCheckpoint(domain.StageStructure, &s)
	if err != nil || !ok {
		t.Fatalf("decode checkpoint: ok=%v err=%v", ok, err)
	}
	return s
}

func TestPauseForReview(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	rec := testutil.SeedUpload(t, db, domain.StatusProcessing, domain.StageStructure, nil)

	if err := svc.PauseForReview(ctx, rec.ID, domain.ParsedContent{SourceType: "markdown"}, testutil.SampleStructure()); err != nil {
		t.Fatalf("PauseForReview: %v", err)
	}
	got := reload(t, db, rec.ID)
	if got.Status != domain.StatusReadyForReview || got.CurrentStage != domain.StageStructure || got.ProgressPercent != 50 {
		t.Fatalf("status/stage/percent = %s/%d/%d", got.Status, got.CurrentStage, got.ProgressPercent)
	}
	if !got.CanResume || got.ResumeFromStage != domain.StageAlign || got.ReviewReadyAt == nil {
		t.Fatalf("resume fields not set: %+v", got)
	}
	if s := decodeStructure(t, got); s.Course.Title != "Algebra I" {
		t.Fatalf("checkpoint course = %q", s.Course.Title)
	}

	if err := svc.PauseForReview(ctx, rec.ID, domain.ParsedContent{SourceType: "markdown"}, testutil.SampleStructure()); !errors.Is(err, ErrNotProcessing) {
		t.Fatalf("second pause err = %v, want ErrNotProcessing", err)
	}
}

func TestApproveFromProcessingFailsWithoutMutation(t *testing.T) {
	svc, db := newService(t)
	structure := testutil.SampleStructure()
	rec := testutil.SeedUpload(t, db, domain.StatusProcessing, domain.StageStructure, &structure)
	before := reload(t, db, rec.ID)

	_, err := svc.Approve(context.Background(), rec.ID, domain.StructureEdits{"course": {"title": "Changed"}})
	if !errors.Is(err, ErrNotReadyForApproval) {
		t.Fatalf("err = %v, want ErrNotReadyForApproval", err)
	}
	after := reload(t, db, rec.ID)
	if after.Status != before.Status || after.ApprovedAt != nil || string(after.Stage2Checkpoint) != string(before.Stage2Checkpoint) {
		t.Fatalf("upload mutated by failed approve: %+v", after)
	}
}

func TestApproveAppliesOnlyGivenEdits(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	structure := testutil.SampleStructure()
	rec := testutil.SeedUpload(t, db, domain.StatusReadyForReview, domain.StageStructure, &structure)

	edits := domain.StructureEdits{"course": {"title": "Algebra Adventures"}}
	updated, err := svc.Approve(ctx, rec.ID, edits)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if updated.Status != domain.StatusProcessing || updated.CurrentStage != domain.StageAlign || updated.ApprovedAt == nil {
		t.Fatalf("status/stage/approved = %s/%d/%v", updated.Status, updated.CurrentStage, updated.ApprovedAt)
	}
	got := decodeStructure(t, updated)
	want := testutil.SampleStructure()
	want.Course.Title = "Algebra Adventures"
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("structure after approve:\n got %+v\nwant %+v", got, want)
	}
	var stored domain.StructureEdits
	if err := json.Unmarshal(updated.HumanStructureEdits, &stored); err != nil || stored["course"]["title"] != "Algebra Adventures" {
		t.Fatalf("edits not stored: %s (%v)", updated.HumanStructureEdits, err)
	}

	if _, err := svc.Approve(ctx, rec.ID, nil); !errors.Is(err, ErrNotReadyForApproval) {
		t.Fatalf("second approve err = %v, want ErrNotReadyForApproval", err)
	}
}

func TestApproveMissingUpload(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Approve(context.Background(), uuid.New(), nil); !errors.Is(err, ErrUploadNotFound) {
		t.Fatalf("err = %v, want ErrUploadNotFound", err)
	}
}

func TestReject(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	structure := testutil.SampleStructure()
	rec := testutil.SeedUpload(t, db, domain.StatusReadyForReview, domain.StageStructure, &structure)

	got, err := svc.Reject(ctx, rec.ID, "wrong course")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.Status != domain.StatusRejected || got.CanResume || got.RejectedAt == nil {
		t.Fatalf("after reject: %+v", got)
	}
	if got.StatusMessage != "Rejected by reviewer: wrong course" {
		t.Fatalf("status message = %q", got.StatusMessage)
	}
	if _, err := svc.Reject(ctx, rec.ID, ""); !errors.Is(err, ErrNotReadyForRejection) {
		t.Fatalf("second reject err = %v", err)
	}
	if _, err := svc.Approve(ctx, rec.ID, nil); !errors.Is(err, ErrNotReadyForApproval) {
		t.Fatalf("approve after reject err = %v", err)
	}
	if _, err := svc.Reject(ctx, uuid.New(), ""); !errors.Is(err, ErrUploadNotFound) {
		t.Fatalf("reject missing err = %v", err)
	}
}

func TestGetStatus(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	rec := testutil.SeedUpload(t, db, domain.StatusProcessing, domain.StageStructure, nil)
	if err := svc.PauseForReview(ctx, rec.ID, domain.ParsedContent{SourceType: "markdown"}, testutil.SampleStructure()); err != nil {
		t.Fatalf("PauseForReview: %v", err)
	}

	st, err := svc.GetStatus(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Structure == nil || len(st.Structure.Modules) != 1 {
		t.Fatalf("structure missing from status: %+v", st)
	}
	if !reflect.DeepEqual(st.AllowedActions, []string{"approve", "reject"}) {
		t.Fatalf("allowed actions = %v", st.AllowedActions)
	}
	if st.Context["modules"] != float64(1) || st.Context["lessons"] != float64(2) {
		t.Fatalf("review context = %v", st.Context)
	}
	if st.Context["source_type"] != "markdown" {
		t.Fatalf("review context source = %v", st.Context["source_type"])
	}
	if st.StageName != "structure" {
		t.Fatalf("stage name = %q", st.StageName)
	}
	if _, err := svc.GetStatus(ctx, uuid.New()); !errors.Is(err, ErrUploadNotFound) {
		t.Fatalf("missing upload err = %v", err)
	}
}

func TestPauseForReviewNeverMovesStageBack(t *testing.T) {
	svc, db := newService(t)
	structure := testutil.SampleStructure()
	rec := testutil.SeedUpload(t, db, domain.StatusProcessing, domain.StageAlign, &structure)
	before := reload(t, db, rec.ID)

	changed := testutil.SampleStructure()
	changed.Course.Title = "Detected Again"
	err := svc.PauseForReview(context.Background(), rec.ID, domain.ParsedContent{SourceType: "markdown"}, changed)
	if !errors.Is(err, ErrNotProcessing) {
		t.Fatalf("err = %v, want ErrNotProcessing", err)
	}
	after := reload(t, db, rec.ID)
	if after.Status != domain.StatusProcessing || after.CurrentStage != domain.StageAlign {
		t.Fatalf("status/stage = %s/%d", after.Status, after.CurrentStage)
	}
	if string(after.Stage2Checkpoint) != string(before.Stage2Checkpoint) {
		t.Fatalf("checkpoint overwritten")
	}
}
