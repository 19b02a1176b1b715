package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/optio-learning/optio-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name       string
		requestID  string
		wantEchoed bool
	}{
		{name: "caller id kept", requestID: "req-abc-123", wantEchoed: true},
		{name: "missing id generated", requestID: ""},
		{name: "oversized id replaced", requestID: strings.Repeat("x", maxClientIDLen+1)},
		{name: "non printable id replaced", requestID: "bad\tid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *ctxutil.TraceData
			r := gin.New()
			r.Use(AttachTraceContext())
			r.GET("/x", func(c *gin.Context) {
				seen = ctxutil.GetTraceData(c.Request.Context())
				c.Status(http.StatusNoContent)
			})
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.requestID != "" {
				req.Header.Set(headerRequestID, tt.requestID)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if seen == nil || seen.RequestID == "" || seen.TraceID == "" {
				t.Fatalf("trace data not attached: %+v", seen)
			}
			got := rec.Header().Get(headerRequestID)
			if got != seen.RequestID {
				t.Fatalf("header %q != context %q", got, seen.RequestID)
			}
			if (got == tt.requestID) != tt.wantEchoed {
				t.Fatalf("request id %q, caller sent %q, want echoed=%v", got, tt.requestID, tt.wantEchoed)
			}
		})
	}
}
