package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedRouter(skip ...string) (*gin.Engine, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	r := gin.New()
	r.Use(TraceID(), Logger(log, skip...), Recovery(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, logs
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLogger_Levels(t *testing.T) {
	r, logs := newObservedRouter()

	get(r, "/ok")
	get(r, "/missing")

	entries := logs.FilterMessage("http").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "/missing", entries[1].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["trace_id"])
}

func TestLogger_Skip(t *testing.T) {
	r, logs := newObservedRouter("/health")
	get(r, "/health")
	assert.Zero(t, logs.FilterMessage("http").Len())
}

func TestRecovery(t *testing.T) {
	r, logs := newObservedRouter()
	w := get(r, "/boom")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), w.Header().Get(TraceIDHeader))
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())

	entries := logs.FilterMessage("http").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}
