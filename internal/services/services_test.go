package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	jobrepo "github.com/optio-learning/optio-backend/internal/data/repos/jobs"
	"github.com/optio-learning/optio-backend/internal/data/repos/testutil"
	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/pipeline"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/progress"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/review"
	"github.com/optio-learning/optio-backend/internal/platform/apierr"
	"github.com/optio-learning/optio-backend/internal/platform/ctxutil"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/objectstore"
	"github.com/optio-learning/optio-backend/internal/realtime"
	"github.com/optio-learning/optio-backend/internal/realtime/bus"
)

type capture struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (c *capture) add(m realtime.SSEMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *capture) events(channel string) []realtime.SSEEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []realtime.SSEEvent
	for _, m := range c.msgs {
		if m.Channel == channel {
			out = append(out, m.Event)
		}
	}
	return out
}

type fixture struct {
	db      *gorm.DB
	uploads curriculum.UploadRepo
	jobRuns jobrepo.JobRunRepo
	store   objectstore.Store
	events  *capture
	jobs    JobService
	svc     UploadService
	courses CourseService
}

func newFixture(t *testing.T, cfg UploadServiceConfig) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	uploads := curriculum.NewUploadRepo(db, log)
	courseRepo := curriculum.NewCourseRepo(db, log)
	jobRuns := jobrepo.NewJobRunRepo(db, log)

	events := &capture{}
	b := bus.NewLocalBus()
	if err := b.StartForwarder(context.Background(), events.add); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	store, err := objectstore.NewLocalStore(log, t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	tracker := progress.NewTracker(log, uploads, b, nil)
	rev := review.NewService(log, uploads, tracker, nil)
	runner := pipeline.NewRunner(log, pipeline.Deps{
		DB:      db,
		Uploads: uploads,
		Courses: courseRepo,
		Store:   store,
		Review:  rev,
		Tracker: tracker,
	}, pipeline.Config{})
	jobSvc := NewJobService(log, jobRuns, NewJobNotifier(log, b))
	return &fixture{
		db:      db,
		uploads: uploads,
		jobRuns: jobRuns,
		store:   store,
		events:  events,
		jobs:    jobSvc,
		svc:     NewUploadService(db, log, uploads, store, jobSvc, rev, runner, cfg),
		courses: NewCourseService(log, courseRepo, jobSvc),
	}
}

func wantAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("want *apierr.Error (%d %s), got %v", status, code, err)
	}
	if ae.Status != status || ae.Code != code {
		t.Fatalf("api error = %d %s, want %d %s", ae.Status, ae.Code, status, code)
	}
}

func payloadOf(t *testing.T, job *jobs.JobRun) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(job.Payload, &m); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return m
}

func TestUploadSubmitQueuesStructureJob(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	owner := uuid.New()
	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{TraceID: "trace-1", RequestID: "req-1"})

	res, err := f.svc.Submit(ctx, owner, SubmitInput{
		Filename: "algebra.md",
		File:     strings.NewReader("# Algebra I\n\n## Linear Equations\n\nSolve for x."),
		Config: domain.UploadConfig{
			TransformationLevel: domain.TransformFull,
			LearningObjectives:  []string{" Solve linear equations ", ""},
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Upload.Status != domain.StatusProcessing || res.Upload.CurrentStage != domain.StageParse {
		t.Fatalf("upload = %s stage %d", res.Upload.Status, res.Upload.CurrentStage)
	}

	rec, err := f.uploads.GetForOwner(dbctx.New(ctx), owner, res.Upload.UploadID)
	if err != nil || rec == nil {
		t.Fatalf("GetForOwner: rec=%v err=%v", rec, err)
	}
	if rec.SourceStorageKey != objectstore.SourceKey(rec.ID, "algebra.md") {
		t.Fatalf("storage key = %q", rec.SourceStorageKey)
	}
	cfg, err := rec.DecodeConfig()
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.TransformationLevel != domain.TransformFull || len(cfg.LearningObjectives) != 1 || cfg.LearningObjectives[0] != "Solve linear equations" {
		t.Fatalf("config = %+v", cfg)
	}

	rc, err := f.store.DownloadFile(ctx, rec.SourceStorageKey)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.HasPrefix(string(data), "# Algebra I") {
		t.Fatalf("stored source = %q", data)
	}

	job, err := f.jobRuns.GetByID(dbctx.New(ctx), res.Job.ID)
	if err != nil || job == nil {
		t.Fatalf("GetByID job: job=%v err=%v", job, err)
	}
	if job.JobType != jobs.TypeCurriculumStructure || job.Status != jobs.StatusQueued {
		t.Fatalf("job = %s/%s", job.JobType, job.Status)
	}
	if job.EntityID == nil || *job.EntityID != rec.ID {
		t.Fatalf("job entity = %v", job.EntityID)
	}
	p := payloadOf(t, job)
	if p["upload_id"] != rec.ID.String() || p["trace_id"] != "trace-1" || p["request_id"] != "req-1" {
		t.Fatalf("payload = %v", p)
	}

	got := f.events.events(realtime.UserChannel(owner))
	if len(got) != 1 || got[0] != realtime.SSEEventJobCreated {
		t.Fatalf("user events = %v", got)
	}
}

func TestUploadSubmitValidation(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{MaxUploadBytes: 64})
	owner := uuid.New()
	cases := []struct {
		name   string
		in     SubmitInput
		status int
		code   string
	}{
		{
			name:   "missing file",
			in:     SubmitInput{Filename: "", File: strings.NewReader("x")},
			status: http.StatusBadRequest,
			code:   "missing_file",
		},
		{
			name:   "unsupported binary",
			in:     SubmitInput{Filename: "blob.bin", File: strings.NewReader("\xff\xfe\x00\x80")},
			status: http.StatusBadRequest,
			code:   "unsupported_format",
		},
		{
			name:   "empty",
			in:     SubmitInput{Filename: "notes.txt", File: strings.NewReader(" \n ")},
			status: http.StatusBadRequest,
			code:   "empty_file",
		},
		{
			name:   "too large",
			in:     SubmitInput{Filename: "notes.txt", File: strings.NewReader(strings.Repeat("a", 65))},
			status: http.StatusRequestEntityTooLarge,
			code:   "file_too_large",
		},
		{
			name: "bad level",
			in: SubmitInput{
				Filename: "notes.txt",
				File:     strings.NewReader("text"),
				Config:   domain.UploadConfig{TransformationLevel: "extreme"},
			},
			status: http.StatusBadRequest,
			code:   "invalid_config",
		},
		{
			name: "objectives differing only in case",
			in: SubmitInput{
				Filename: "notes.txt",
				File:     strings.NewReader("text"),
				Config:   domain.UploadConfig{LearningObjectives: []string{"Photosynthesis", " photosynthesis"}},
			},
			status: http.StatusBadRequest,
			code:   "invalid_config",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), owner, tc.in)
			wantAPIError(t, err, tc.status, tc.code)
		})
	}
	list, err := f.svc.List(context.Background(), owner, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected submissions created %d uploads", len(list))
	}
}

func TestUploadApproveAndReject(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	structure := testutil.SampleStructure()
	rec := testutil.SeedUpload(t, f.db, domain.StatusReadyForReview, domain.StageStructure, &structure)
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, uuid.New(), rec.ID, nil)
	wantAPIError(t, err, http.StatusNotFound, "upload_not_found")

	edits := domain.StructureEdits{"module_1": {"title": "Solving Equations"}}
	res, err := f.svc.Approve(ctx, rec.OwnerUserID, rec.ID, edits)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if res.Upload.Status != domain.StatusProcessing || res.Upload.CurrentStage != domain.StageAlign {
		t.Fatalf("approved upload = %s stage %d", res.Upload.Status, res.Upload.CurrentStage)
	}
	if res.Upload.Structure == nil || res.Upload.Structure.Modules[0].Title != "Solving Equations" {
		t.Fatalf("edits not applied: %+v", res.Upload.Structure)
	}
	if res.Job == nil || res.Job.JobType != jobs.TypeCurriculumGenerate {
		t.Fatalf("job = %+v", res.Job)
	}

	_, err = f.svc.Approve(ctx, rec.OwnerUserID, rec.ID, nil)
	wantAPIError(t, err, http.StatusConflict, "upload_not_ready_for_approval")
	_, err = f.svc.Reject(ctx, rec.OwnerUserID, rec.ID, "")
	wantAPIError(t, err, http.StatusConflict, "upload_not_ready_for_rejection")

	other := testutil.SeedUpload(t, f.db, domain.StatusReadyForReview, domain.StageStructure, &structure)
	rej, err := f.svc.Reject(ctx, other.OwnerUserID, other.ID, "wrong file")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rej.Upload.Status != domain.StatusRejected || rej.Job != nil {
		t.Fatalf("rejected = %+v", rej)
	}
	if !strings.Contains(rej.Upload.StatusMessage, "wrong file") {
		t.Fatalf("status message = %q", rej.Upload.StatusMessage)
	}
}

func TestUploadRetry(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	ctx := context.Background()
	structure := testutil.SampleStructure()

	approved := testutil.SeedUpload(t, f.db, domain.StatusError, domain.StageGenerate, &structure)
	if err := f.db.Model(&domain.UploadRecord{}).Where("id = ?", approved.ID).Update("approved_at", time.Now()).Error; err != nil {
		t.Fatalf("set approved_at: %v", err)
	}
	unapproved := testutil.SeedUpload(t, f.db, domain.StatusError, domain.StageParse, nil)
	live := testutil.SeedUpload(t, f.db, domain.StatusProcessing, domain.StageParse, nil)

	cases := []struct {
		name    string
		rec     *domain.UploadRecord
		jobType string
		stage   int
	}{
		{name: "approved resumes at alignment", rec: approved, jobType: jobs.TypeCurriculumGenerate, stage: domain.StageAlign},
		{name: "unapproved restarts parsing", rec: unapproved, jobType: jobs.TypeCurriculumStructure, stage: domain.StageParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.Retry(ctx, tc.rec.OwnerUserID, tc.rec.ID)
			if err != nil {
				t.Fatalf("Retry: %v", err)
			}
			if res.Job == nil || res.Job.JobType != tc.jobType {
				t.Fatalf("job = %+v", res.Job)
			}
			if res.Upload.Status != domain.StatusProcessing || res.Upload.CurrentStage != tc.stage {
				t.Fatalf("upload = %s stage %d", res.Upload.Status, res.Upload.CurrentStage)
			}
			if payloadOf(t, res.Job)["retry"] != true {
				t.Fatalf("payload missing retry flag")
			}
		})
	}

	_, err := f.svc.Retry(ctx, live.OwnerUserID, live.ID)
	wantAPIError(t, err, http.StatusConflict, "upload_not_retryable")
}

func TestCourseServiceGenerateFromTopic(t *testing.T) {
	f := newFixture(t, UploadServiceConfig{})
	ctx := context.Background()
	owner := uuid.New()

	_, err := f.courses.GenerateFromTopic(ctx, owner, "  ", nil)
	wantAPIError(t, err, http.StatusBadRequest, "missing_topic")

	_, err = f.courses.GenerateFromTopic(ctx, owner, "Cells", []string{"Name organelles", "name  ORGANELLES"})
	wantAPIError(t, err, http.StatusBadRequest, "invalid_objectives")

	job, err := f.courses.GenerateFromTopic(ctx, owner, "Photosynthesis", []string{"Explain light reactions", " "})
	if err != nil {
		t.Fatalf("GenerateFromTopic: %v", err)
	}
	if job.JobType != jobs.TypeCourseFromTopic || job.EntityID != nil {
		t.Fatalf("job = %+v", job)
	}
	p := payloadOf(t, job)
	objs, _ := p["learning_objectives"].([]any)
	if p["topic"] != "Photosynthesis" || len(objs) != 1 {
		t.Fatalf("payload = %v", p)
	}

	got, err := f.jobs.GetForOwner(dbctx.New(ctx), uuid.New(), job.ID)
	if err != nil || got != nil {
		t.Fatalf("foreign owner saw job: %v %v", got, err)
	}

	_, err = f.courses.GetForOwner(ctx, owner, uuid.New())
	wantAPIError(t, err, http.StatusNotFound, "course_not_found")
}
