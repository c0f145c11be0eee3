package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/battlesim/middleware"
	"github.com/kasuganosora/battlesim/sim"
	"go.uber.org/zap"
)

// MaxBatch is the largest number of scenarios one batch request may carry.
const MaxBatch = 32

// Evaluator runs scenarios. *sim.Service implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, sc sim.Scenario) (*sim.Summary, error)
	EvaluateAll(ctx context.Context, scenarios []sim.Scenario) ([]*sim.Summary, error)
}

// EvaluateHandler serves the evaluation endpoints.
type EvaluateHandler struct {
	eval   Evaluator
	logger *zap.Logger
}

// NewEvaluateHandler creates an EvaluateHandler.
func NewEvaluateHandler(eval Evaluator, logger *zap.Logger) *EvaluateHandler {
	return &EvaluateHandler{eval: eval, logger: logger}
}

// Evaluate runs one scenario and returns its summary.
// POST /api/evaluate
func (h *EvaluateHandler) Evaluate(c *gin.Context) {
	var sc sim.Scenario
	if err := c.ShouldBindJSON(&sc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := sim.WithTraceID(c.Request.Context(), mw.GetTraceID(c))
	sum, err := h.eval.Evaluate(ctx, sc)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type batchRequest struct {
	Scenarios []sim.Scenario `json:"scenarios"`
}

// EvaluateBatch runs several scenarios concurrently. Either all summaries
// are returned, in request order, or the first error.
// POST /api/evaluate/batch
func (h *EvaluateHandler) EvaluateBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Scenarios) == 0 || len(req.Scenarios) > MaxBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenarios must hold 1 to 32 entries"})
		return
	}
	ctx := sim.WithTraceID(c.Request.Context(), mw.GetTraceID(c))
	sums, err := h.eval.EvaluateAll(ctx, req.Scenarios)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": sums})
}

func (h *EvaluateHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, sim.ErrInvalidScenario):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "evaluation timed out"})
	case errors.Is(err, context.Canceled):
		// client went away
		c.Status(499)
	default:
		h.logger.Error("evaluation failed", zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
	}
}
