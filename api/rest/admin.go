package rest

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PoolStats is the view of the worker pool the admin endpoint reports.
// *scheduler.Pool implements it.
type PoolStats interface {
	Size() int
	Pending() int
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	pool PoolStats
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(pool PoolStats) *AdminHandler {
	return &AdminHandler{pool: pool}
}

// Engine reports the worker pool's size and backlog.
// GET /api/admin/engine
func (h *AdminHandler) Engine(c *gin.Context) {
	if h.pool == nil {
		c.JSON(http.StatusOK, gin.H{"workers": 0, "pending": 0, "inline": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workers": h.pool.Size(),
		"pending": h.pool.Pending(),
		"inline":  false,
	})
}

// AdminAuth guards admin routes with the X-Admin-Key header.
// An empty key disables the routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
