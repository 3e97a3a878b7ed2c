package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/callassist/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRequestLoggerTagsSessionAndRequestID(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	r := gin.New()
	r.Use(RequestLogger(logger, func() string { return "s-42" }))
	r.GET("/session", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session", nil))
	minted := w.Header().Get(RequestIDHeader)
	if minted == "" {
		t.Fatalf("expected a minted request id header")
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["session_id"] != "s-42" || line["request_id"] != minted || line["route"] != "/session" {
		t.Fatalf("unexpected log fields: %v", line)
	}
	if line["level"] != "warn" || line["status"] != 404.0 {
		t.Fatalf("unexpected level or status: %v", line)
	}

	buf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "req-7" {
		t.Fatalf("caller request id not echoed: %q", got)
	}
}
