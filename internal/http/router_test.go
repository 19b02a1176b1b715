package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/domain/jobs"
	httpH "github.com/optio-learning/optio-backend/internal/http/handlers"
	httpMW "github.com/optio-learning/optio-backend/internal/http/middleware"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

const testSecret = "router-test-secret"

type fakeJobs struct {
	job *jobs.JobRun
}

func (f *fakeJobs) Enqueue(dbc dbctx.Context, owner uuid.UUID, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*jobs.JobRun, error) {
	return nil, nil
}

func (f *fakeJobs) GetForOwner(dbc dbctx.Context, owner, jobID uuid.UUID) (*jobs.JobRun, error) {
	if f.job == nil || f.job.ID != jobID || f.job.OwnerUserID != owner {
		return nil, nil
	}
	return f.job, nil
}

func (f *fakeJobs) GetLatestForEntity(dbc dbctx.Context, owner uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*jobs.JobRun, error) {
	return nil, nil
}

func signToken(t *testing.T, secret string, sub uuid.UUID, exp time.Time, method jwt.SigningMethod) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   sub.String(),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestRouterAuthAndPublicRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	owner := uuid.New()
	job := &jobs.JobRun{ID: uuid.New(), OwnerUserID: owner, JobType: jobs.TypeCurriculumStructure, Status: jobs.StatusQueued}
	r := NewRouter(RouterConfig{
		Log:            log,
		Metrics:        observability.NewMetrics(),
		AuthMiddleware: httpMW.NewAuthMiddleware(log, testSecret),
		JobHandler:     httpH.NewJobHandler(&fakeJobs{job: job}),
		HealthHandler:  httpH.NewHealthHandler(nil),
	})

	jobPath := "/api/jobs/" + job.ID.String()
	valid := signToken(t, testSecret, owner, time.Now().Add(time.Hour), jwt.SigningMethodHS256)
	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "healthcheck is public", path: "/healthcheck", status: http.StatusOK},
		{name: "missing token", path: jobPath, status: http.StatusUnauthorized},
		{name: "valid bearer", path: jobPath, header: "Bearer " + valid, status: http.StatusOK},
		{name: "query token", path: jobPath + "?token=" + valid, status: http.StatusOK},
		{name: "wrong secret", path: jobPath, header: "Bearer " + signToken(t, "other", owner, time.Now().Add(time.Hour), jwt.SigningMethodHS256), status: http.StatusUnauthorized},
		{name: "expired", path: jobPath, header: "Bearer " + signToken(t, testSecret, owner, time.Now().Add(-time.Hour), jwt.SigningMethodHS256), status: http.StatusUnauthorized},
		{name: "wrong algorithm", path: jobPath, header: "Bearer " + signToken(t, testSecret, owner, time.Now().Add(time.Hour), jwt.SigningMethodHS512), status: http.StatusUnauthorized},
		{name: "other owner", path: jobPath, header: "Bearer " + signToken(t, testSecret, uuid.New(), time.Now().Add(time.Hour), jwt.SigningMethodHS256), status: http.StatusNotFound},
		{name: "bad job id", path: "/api/jobs/nope", header: "Bearer " + valid, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tt.status, rec.Body.String())
			}
			if rec.Header().Get("X-Request-Id") == "" {
				t.Fatalf("missing X-Request-Id header")
			}
		})
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "optio_http_requests_total") {
		t.Fatalf("metrics output missing http counter")
	}
}
