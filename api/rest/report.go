package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlesim/model"
	"github.com/kasuganosora/battlesim/report"
	"go.uber.org/zap"
)

// ReportStore reads persisted reports. *report.Service implements it.
type ReportStore interface {
	Get(ctx context.Context, id string) (*model.OutcomeReport, error)
	List(ctx context.Context, scenario string, limit int) ([]model.OutcomeReport, error)
}

// ReportHandler serves stored outcome reports. A nil store answers 503,
// which is what a server running without a database gets.
type ReportHandler struct {
	store  ReportStore
	logger *zap.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(store ReportStore, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{store: store, logger: logger}
}

func (h *ReportHandler) available(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report storage disabled"})
		return false
	}
	return true
}

// Get returns one report.
// GET /api/reports/:id
func (h *ReportHandler) Get(c *gin.Context) {
	if !h.available(c) {
		return
	}
	r, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, report.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	if err != nil {
		h.logger.Error("report lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, r)
}

// List returns the newest reports.
// GET /api/reports?scenario=duel&limit=20
func (h *ReportHandler) List(c *gin.Context) {
	if !h.available(c) {
		return
	}
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}
	reports, err := h.store.List(c.Request.Context(), c.Query("scenario"), limit)
	if err != nil {
		h.logger.Error("report list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}
