package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRateLimitRouter(t *testing.T, r rate.Limit, b int) (*gin.Engine, *RateLimiter) {
	rl := NewRateLimiter(r, b)
	t.Cleanup(rl.Stop)
	eng := gin.New()
	eng.Use(rl.Handler())
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng, rl
}

func hit(eng *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	w := httptest.NewRecorder()
	eng.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsFirst(t *testing.T) {
	eng, _ := newRateLimitRouter(t, 100, 5)
	assert.Equal(t, http.StatusOK, hit(eng, "10.0.0.1").Code)
}

func TestRateLimit_Burst(t *testing.T) {
	eng, _ := newRateLimitRouter(t, 0.001, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(eng, "10.0.1.1").Code, "request %d should be allowed", i+1)
	}
	w := hit(eng, "10.0.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Retry-After"))
}

func TestRateLimit_PerIP(t *testing.T) {
	eng, _ := newRateLimitRouter(t, 0.001, 1)

	for _, ip := range []string{"10.1.1.1", "10.1.1.2"} {
		assert.Equal(t, http.StatusOK, hit(eng, ip).Code, "first request from %s should be OK", ip)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(eng, "10.1.1.1").Code)
}

func TestRateLimit_EvictIdle(t *testing.T) {
	eng, rl := newRateLimitRouter(t, 0.001, 1)
	assert.Equal(t, http.StatusOK, hit(eng, "10.2.2.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(eng, "10.2.2.2").Code)

	rl.evict(time.Now().Add(time.Minute))
	assert.Equal(t, http.StatusOK, hit(eng, "10.2.2.2").Code)
}

func TestRateLimit_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Stop()
	rl.Stop()
}
