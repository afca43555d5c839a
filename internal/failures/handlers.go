package failures

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relfin/disburse/internal/faults"
)

// Handler provides HTTP endpoints for failure reporting and retries.
type Handler struct {
	service *Service
}

// NewHandler creates a new failures handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up failure coordination routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/queue/:id/report-failure", h.ReportFailure)
	r.POST("/queue/retry-due", h.RetryDue)
}

// ReportFailureRequest is the payload for POST /v1/queue/:id/report-failure.
type ReportFailureRequest struct {
	Reason    string `json:"reason" binding:"required"`
	Retryable bool   `json:"retryable"`
}

// ReportFailure handles POST /v1/queue/:id/report-failure
func (h *Handler) ReportFailure(c *gin.Context) {
	var req ReportFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	outcome, err := h.service.ReportFailure(c.Request.Context(), c.Param("id"), req.Reason, req.Retryable)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

// RetryDueRequest is the payload for POST /v1/queue/retry-due.
type RetryDueRequest struct {
	EntryIDs   []string `json:"entryIds"`
	OperatorID string   `json:"operatorId" binding:"required"`
}

// RetryDue handles POST /v1/queue/retry-due
func (h *Handler) RetryDue(c *gin.Context) {
	var req RetryDueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result, err := h.service.RetryDue(c.Request.Context(), req.EntryIDs, req.OperatorID)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}
