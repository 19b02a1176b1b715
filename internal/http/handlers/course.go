package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/http/response"
	"github.com/optio-learning/optio-backend/internal/platform/ctxutil"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/services"
)

type CourseHandler struct {
	log           *logger.Logger
	courseService services.CourseService
}

func NewCourseHandler(log *logger.Logger, courseService services.CourseService) *CourseHandler {
	return &CourseHandler{
		log:           log.With("handler", "CourseHandler"),
		courseService: courseService,
	}
}

type fromTopicRequest struct {
	Topic              string   `json:"topic"`
	LearningObjectives []string `json:"learning_objectives"`
}

// POST /api/courses/from-topic
func (h *CourseHandler) FromTopic(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req fromTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job, err := h.courseService.GenerateFromTopic(c.Request.Context(), userID, req.Topic, req.LearningObjectives)
	if err != nil {
		h.log.Warn("FromTopic failed", "error", err, "user_id", userID)
		response.RespondAPIError(c, err, "queue_topic_failed")
		return
	}
	response.RespondAccepted(c, gin.H{"job_id": job.ID, "job": job})
}

// GET /api/courses/:id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}
	course, err := h.courseService.GetForOwner(c.Request.Context(), userID, courseID)
	if err != nil {
		response.RespondAPIError(c, err, "load_course_failed")
		return
	}
	response.RespondOK(c, gin.H{"course": course})
}
