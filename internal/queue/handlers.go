package queue

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/pagination"
)

// Handler provides HTTP endpoints for queue operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new queue handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up queue routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/queue", h.Admit)
	r.GET("/queue", h.List)
	r.GET("/queue/summary", h.Summary)
	r.GET("/queue/:id", h.Get)
	r.POST("/queue/:id/cancel", h.Cancel)
}

// AdmitRequest is the payload for POST /v1/queue.
type AdmitRequest struct {
	ClaimID    string `json:"claimId" binding:"required"`
	OperatorID string `json:"operatorId" binding:"required"`
}

// Admit handles POST /v1/queue
func (h *Handler) Admit(c *gin.Context) {
	var req AdmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	entry, err := h.service.Admit(c.Request.Context(), req.ClaimID, req.OperatorID)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

// Get handles GET /v1/queue/:id
func (h *Handler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// List handles GET /v1/queue
func (h *Handler) List(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	page := pagination.Normalize(queryInt(c, "page"), queryInt(c, "pageSize"))
	result, err := h.service.Query(c.Request.Context(), filter, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Summary handles GET /v1/queue/summary
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.DashboardSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// CancelRequest is the payload for POST /v1/queue/:id/cancel.
type CancelRequest struct {
	OperatorID string `json:"operatorId" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

// Cancel handles POST /v1/queue/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	entry, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.OperatorID, req.Reason)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func filterFromQuery(c *gin.Context) (Filter, error) {
	f := Filter{
		Status:           Status(c.Query("status")),
		ValidationStatus: ValidationStatus(c.Query("validationStatus")),
		BatchID:          c.Query("batchId"),
		Priority:         Priority(c.Query("priority")),
		Scheme:           c.Query("scheme"),
	}

	if v := c.Query("createdFrom"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.CreatedFrom = &t
	}
	if v := c.Query("createdTo"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.CreatedTo = &t
	}
	if v := c.Query("minAmount"); v != "" {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, err
		}
		f.MinAmount = &a
	}
	if v := c.Query("maxAmount"); v != "" {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, err
		}
		f.MaxAmount = &a
	}

	return f, nil
}

func queryInt(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}
