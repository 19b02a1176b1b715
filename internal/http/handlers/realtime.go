package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/http/response"
	"github.com/optio-learning/optio-backend/internal/platform/ctxutil"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/events streams job events for everything the caller owns.
func (h *RealtimeHandler) UserStream(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, realtime.UserChannel(userID))
	defer h.hub.CloseClient(client)
	h.log.Debug("user event stream open", "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
