package bankcheck

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relfin/disburse/internal/faults"
)

// Handler provides HTTP endpoints for bank validation.
type Handler struct {
	service *Service
}

// NewHandler creates a new bank validation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up bank validation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/queue/:id/validate-bank", h.Validate)
	r.POST("/queue/validate-bank", h.ValidateBulk)
}

// Validate handles POST /v1/queue/:id/validate-bank
func (h *Handler) Validate(c *gin.Context) {
	result, err := h.service.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ValidateBulkRequest is the payload for POST /v1/queue/validate-bank.
type ValidateBulkRequest struct {
	EntryIDs []string `json:"entryIds" binding:"required,min=1"`
}

// ValidateBulk handles POST /v1/queue/validate-bank
func (h *Handler) ValidateBulk(c *gin.Context) {
	var req ValidateBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	results := h.service.ValidateBulk(c.Request.Context(), req.EntryIDs)
	c.JSON(http.StatusOK, gin.H{"results": results})
}
