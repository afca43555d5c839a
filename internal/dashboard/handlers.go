// Package dashboard provides JSON API endpoints for the operations console.
package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/relfin/disburse/internal/batch"
	"github.com/relfin/disburse/internal/duplicates"
	"github.com/relfin/disburse/internal/healthmon"
	"github.com/relfin/disburse/internal/pagination"
	"github.com/relfin/disburse/internal/queue"
	"github.com/relfin/disburse/internal/recon"
)

// Handler aggregates the per-domain services into operator rollups.
type Handler struct {
	queue   *queue.Service
	batches *batch.Service
	dups    *duplicates.Service
	recon   *recon.Service
	monitor *healthmon.Monitor
}

// NewHandler creates a new dashboard handler.
func NewHandler(queueSvc *queue.Service, batchSvc *batch.Service, dupSvc *duplicates.Service, reconSvc *recon.Service, monitor *healthmon.Monitor) *Handler {
	return &Handler{
		queue:   queueSvc,
		batches: batchSvc,
		dups:    dupSvc,
		recon:   reconSvc,
		monitor: monitor,
	}
}

// RegisterRoutes sets up dashboard routes under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard/overview", h.Overview)
	r.GET("/dashboard/attention", h.Attention)
	r.GET("/dashboard/batches", h.Batches)
}

// Overview returns the queue rollup, reconciliation totals, open duplicate
// flags, and the latest integration snapshot in one call.
func (h *Handler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	summary, err := h.queue.DashboardSummary(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	reconStatus, err := h.recon.Status(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	_, openFlags, err := h.dups.ListFlags(ctx, duplicates.ReviewFlagged, 1, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	snapshot := h.monitor.Latest()

	c.JSON(http.StatusOK, gin.H{
		"queue":          summary,
		"reconciliation": reconStatus,
		"openDuplicateFlags": openFlags,
		"integrations": gin.H{
			"status":    snapshot.Status,
			"endpoints": snapshot.Endpoints,
			"checkedAt": snapshot.CheckedAt,
		},
	})
}

// Attention returns the work items an operator has to act on: entries that
// failed bank validation, entries flagged as duplicates, and unresolved
// duplicate flags.
func (h *Handler) Attention(c *gin.Context) {
	ctx := c.Request.Context()
	limit := parseLimit(c, 50, pagination.MaxPageSize)
	page := pagination.Page{Number: 1, Size: limit}

	invalid, err := h.queue.Query(ctx, queue.Filter{ValidationStatus: queue.ValidationInvalid}, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	duplicated, err := h.queue.Query(ctx, queue.Filter{ValidationStatus: queue.ValidationDuplicate}, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	failed, err := h.queue.Query(ctx, queue.Filter{Status: queue.StatusFailed}, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	flags, flagTotal, err := h.dups.ListFlags(ctx, duplicates.ReviewFlagged, limit, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invalidEntries":   invalid,
		"duplicateEntries": duplicated,
		"failedEntries":    failed,
		"openFlags": gin.H{
			"items":      flags,
			"totalCount": flagTotal,
		},
	})
}

// Batches returns recent batches, optionally filtered by status.
func (h *Handler) Batches(c *gin.Context) {
	ctx := c.Request.Context()
	limit := parseLimit(c, 20, pagination.MaxPageSize)
	status := batch.Status(c.Query("status"))

	batches, total, err := h.batches.List(ctx, status, limit, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batches":    batches,
		"totalCount": total,
	})
}

func parseLimit(c *gin.Context, defaultVal, maxVal int) int {
	limit := defaultVal
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxVal {
		limit = maxVal
	}
	return limit
}
