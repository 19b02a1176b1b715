package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/http/response"
	"github.com/optio-learning/optio-backend/internal/platform/ctxutil"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/realtime"
	"github.com/optio-learning/optio-backend/internal/services"
)

type UploadHandler struct {
	log     *logger.Logger
	uploads services.UploadService
	hub     *realtime.SSEHub
}

func NewUploadHandler(log *logger.Logger, uploads services.UploadService, hub *realtime.SSEHub) *UploadHandler {
	return &UploadHandler{
		log:     log.With("handler", "UploadHandler"),
		uploads: uploads,
		hub:     hub,
	}
}

// POST /api/curriculum-uploads
func (h *UploadHandler) Submit(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	cfg, err := uploadConfigFromForm(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_config", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "read_file_failed", err)
		return
	}
	defer f.Close()

	res, err := h.uploads.Submit(c.Request.Context(), userID, services.SubmitInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		File:        f,
		Config:      cfg,
	})
	if err != nil {
		h.log.Warn("Submit failed", "error", err, "user_id", userID, "filename", fh.Filename)
		response.RespondAPIError(c, err, "submit_upload_failed")
		return
	}
	response.RespondAccepted(c, gin.H{
		"upload_id": res.Upload.UploadID,
		"status":    res.Upload.Status,
		"job_id":    res.Job.ID,
		"upload":    res.Upload,
	})
}

// uploadConfigFromForm reads the optional config fields. content_types is
// a JSON object; learning_objectives is a JSON array or a repeated field.
func uploadConfigFromForm(c *gin.Context) (domain.UploadConfig, error) {
	var cfg domain.UploadConfig
	cfg.TransformationLevel = domain.TransformationLevel(strings.ToLower(strings.TrimSpace(c.PostForm("transformation_level"))))
	if raw := strings.TrimSpace(c.PostForm("preserve_structure")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("preserve_structure: %w", err)
		}
		cfg.PreserveStructure = v
	}
	if raw := strings.TrimSpace(c.PostForm("content_types")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.ContentTypes); err != nil {
			return cfg, fmt.Errorf("content_types must be a JSON object of booleans: %w", err)
		}
	}
	values := c.PostFormArray("learning_objectives")
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		if err := json.Unmarshal([]byte(values[0]), &cfg.LearningObjectives); err != nil {
			return cfg, fmt.Errorf("learning_objectives must be a JSON array of strings: %w", err)
		}
	} else {
		cfg.LearningObjectives = values
	}
	return cfg, nil
}

// GET /api/curriculum-uploads
func (h *UploadHandler) List(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	uploads, err := h.uploads.List(c.Request.Context(), userID, limit)
	if err != nil {
		response.RespondAPIError(c, err, "list_uploads_failed")
		return
	}
	response.RespondOK(c, gin.H{"uploads": uploads})
}

// GET /api/curriculum-uploads/:id
func (h *UploadHandler) Get(c *gin.Context) {
	userID, uploadID, ok := h.ids(c)
	if !ok {
		return
	}
	st, err := h.uploads.Get(c.Request.Context(), userID, uploadID)
	if err != nil {
		response.RespondAPIError(c, err, "get_upload_failed")
		return
	}
	response.RespondOK(c, gin.H{"upload": st})
}

type approveRequest struct {
	Edits domain.StructureEdits `json:"edits"`
}

// POST /api/curriculum-uploads/:id/approve
func (h *UploadHandler) Approve(c *gin.Context) {
	userID, uploadID, ok := h.ids(c)
	if !ok {
		return
	}
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.uploads.Approve(c.Request.Context(), userID, uploadID, req.Edits)
	if err != nil {
		response.RespondAPIError(c, err, "approve_upload_failed")
		return
	}
	response.RespondAccepted(c, res)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// POST /api/curriculum-uploads/:id/reject
func (h *UploadHandler) Reject(c *gin.Context) {
	userID, uploadID, ok := h.ids(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.uploads.Reject(c.Request.Context(), userID, uploadID, req.Reason)
	if err != nil {
		response.RespondAPIError(c, err, "reject_upload_failed")
		return
	}
	response.RespondOK(c, res)
}

// POST /api/curriculum-uploads/:id/retry
func (h *UploadHandler) Retry(c *gin.Context) {
	userID, uploadID, ok := h.ids(c)
	if !ok {
		return
	}
	res, err := h.uploads.Retry(c.Request.Context(), userID, uploadID)
	if err != nil {
		response.RespondAPIError(c, err, "retry_upload_failed")
		return
	}
	response.RespondAccepted(c, res)
}

// GET /api/curriculum-uploads/:id/events
func (h *UploadHandler) Events(c *gin.Context) {
	userID, uploadID, ok := h.ids(c)
	if !ok {
		return
	}
	if _, err := h.uploads.Get(c.Request.Context(), userID, uploadID); err != nil {
		response.RespondAPIError(c, err, "get_upload_failed")
		return
	}
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, realtime.UploadChannel(uploadID))
	defer h.hub.CloseClient(client)
	h.log.Debug("upload event stream open", "upload_id", uploadID, "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

func (h *UploadHandler) ids(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return uuid.Nil, uuid.Nil, false
	}
	uploadID, err := uuid.Parse(c.Param("id"))
	if err != nil || uploadID == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_upload_id", err)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, uploadID, true
}
