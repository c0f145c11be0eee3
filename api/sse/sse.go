// Package sse streams evaluation completions to browsers as server-sent
// events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlesim/cache"
	"github.com/kasuganosora/battlesim/sim"
	"go.uber.org/zap"
)

// Handler serves the event stream.
type Handler struct {
	pubsub    cache.PubSub
	logger    *zap.Logger
	keepalive time.Duration
}

// NewHandler creates a Handler. keepalive <= 0 means 30s.
func NewHandler(pubsub cache.PubSub, keepalive time.Duration, logger *zap.Logger) *Handler {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pubsub: pubsub, keepalive: keepalive, logger: logger}
}

// ServeSSE streams an "evaluation" event for every finished evaluation.
// GET /api/events?scenario=<name> limits the stream to one scenario.
func (h *Handler) ServeSSE(c *gin.Context) {
	ctx := c.Request.Context()
	msgCh, unsub, err := h.pubsub.Subscribe(ctx, sim.EventsChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event stream unavailable"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprint(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	scenario := c.Query("scenario")
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if scenario != "" && !forScenario(msg.Payload, scenario) {
				continue
			}
			fmt.Fprintf(c.Writer, "event: evaluation\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-ctx.Done():
			return
		}
	}
}

func forScenario(payload, scenario string) bool {
	var ev struct {
		Scenario string `json:"scenario"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	return ev.Scenario == scenario
}
