package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apphttp "github.com/optio-learning/optio-backend/internal/http"
	httpH "github.com/optio-learning/optio-backend/internal/http/handlers"
	httpMW "github.com/optio-learning/optio-backend/internal/http/middleware"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

func wireRouter(log *logger.Logger, cfg Config, db *gorm.DB, svcs Services, hub *realtime.SSEHub, metrics *observability.Metrics) apphttp.RouterConfig {
	if cfg.LogMode == "production" || cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	serviceName := ""
	if cfg.Observability.OTelEnabled {
		serviceName = cfg.Observability.ServiceName
	}
	return apphttp.RouterConfig{
		Log:            log,
		ServiceName:    serviceName,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Metrics:        metrics,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, cfg.JWT.SecretKey),

		UploadHandler:   httpH.NewUploadHandler(log, svcs.Uploads, hub),
		CourseHandler:   httpH.NewCourseHandler(log, svcs.Courses),
		JobHandler:      httpH.NewJobHandler(svcs.Jobs),
		RealtimeHandler: httpH.NewRealtimeHandler(log, hub),
		HealthHandler:   httpH.NewHealthHandler(db),
	}
}
