package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/optio-learning/optio-backend/internal/http/handlers"
	httpMW "github.com/optio-learning/optio-backend/internal/http/middleware"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	UploadHandler   *httpH.UploadHandler
	CourseHandler   *httpH.CourseHandler
	JobHandler      *httpH.JobHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	protected := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Curriculum uploads
		if cfg.UploadHandler != nil {
			protected.POST("/curriculum-uploads", cfg.UploadHandler.Submit)
			protected.GET("/curriculum-uploads", cfg.UploadHandler.List)
			protected.GET("/curriculum-uploads/:id", cfg.UploadHandler.Get)
			protected.POST("/curriculum-uploads/:id/approve", cfg.UploadHandler.Approve)
			protected.POST("/curriculum-uploads/:id/reject", cfg.UploadHandler.Reject)
			protected.POST("/curriculum-uploads/:id/retry", cfg.UploadHandler.Retry)
			protected.GET("/curriculum-uploads/:id/events", cfg.UploadHandler.Events)
		}

		// Courses
		if cfg.CourseHandler != nil {
			protected.POST("/courses/from-topic", cfg.CourseHandler.FromTopic)
			protected.GET("/courses/:id", cfg.CourseHandler.GetCourse)
		}

		// Job
		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/events", cfg.RealtimeHandler.UserStream)
		}
	}

	return r
}
