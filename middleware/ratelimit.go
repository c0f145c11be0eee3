package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdle       = 10 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (il *ipLimiter) touch(now time.Time) {
	il.mu.Lock()
	il.lastSeen = now
	il.mu.Unlock()
}

func (il *ipLimiter) idleSince(cutoff time.Time) bool {
	il.mu.Lock()
	defer il.mu.Unlock()
	return il.lastSeen.Before(cutoff)
}

// RateLimiter is a per-IP token bucket. Idle buckets are swept in the
// background until Stop is called.
type RateLimiter struct {
	r        rate.Limit
	b        int
	limiters sync.Map // ip -> *ipLimiter
	stop     chan struct{}
	once     sync.Once
}

// NewRateLimiter allows r requests per second per client IP with bursts of b.
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	rl := &RateLimiter{r: r, b: b, stop: make(chan struct{})}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evict(time.Now().Add(-limiterIdle))
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evict(cutoff time.Time) {
	rl.limiters.Range(func(k, v interface{}) bool {
		if v.(*ipLimiter).idleSince(cutoff) {
			rl.limiters.Delete(k)
		}
		return true
	})
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	v, _ := rl.limiters.LoadOrStore(ip, &ipLimiter{limiter: rate.NewLimiter(rl.r, rl.b)})
	il := v.(*ipLimiter)
	il.touch(time.Now())
	return il.limiter
}

// Stop ends the sweeper. The handler keeps working.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Handler rejects requests over the limit with 429 and a Retry-After hint.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lim := rl.get(c.ClientIP())
		if !lim.Allow() {
			if rl.r > 0 {
				retry := int(math.Ceil(1 / float64(rl.r)))
				c.Header("Retry-After", strconv.Itoa(retry))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
