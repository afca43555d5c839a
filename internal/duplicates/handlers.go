package duplicates

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/pagination"
)

// Handler provides HTTP endpoints for duplicate detection.
type Handler struct {
	service *Service
}

// NewHandler creates a new duplicates handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up duplicate detection routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/queue/:id/check-duplicates", h.Check)
	r.POST("/queue/check-duplicates", h.CheckBulk)
	r.GET("/duplicate-flags", h.ListFlags)
	r.GET("/duplicate-flags/:id", h.GetFlag)
	r.POST("/duplicate-flags/:id/review", h.Review)
}

// Check handles POST /v1/queue/:id/check-duplicates
func (h *Handler) Check(c *gin.Context) {
	result, err := h.service.Check(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// CheckBulkRequest is the payload for POST /v1/queue/check-duplicates.
type CheckBulkRequest struct {
	EntryIDs []string `json:"entryIds" binding:"required,min=1"`
}

// CheckBulk handles POST /v1/queue/check-duplicates
func (h *Handler) CheckBulk(c *gin.Context) {
	var req CheckBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	results := h.service.CheckBulk(c.Request.Context(), req.EntryIDs)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ListFlags handles GET /v1/duplicate-flags
func (h *Handler) ListFlags(c *gin.Context) {
	page := pagination.Normalize(queryInt(c, "page"), queryInt(c, "pageSize"))
	status := ReviewStatus(c.Query("status"))

	flags, total, err := h.service.ListFlags(c.Request.Context(), status, page.Size, page.Offset())
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, pagination.Result[*Flag]{
		Items:      flags,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalCount: total,
	})
}

func queryInt(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}

// GetFlag handles GET /v1/duplicate-flags/:id
func (h *Handler) GetFlag(c *gin.Context) {
	flag, err := h.service.GetFlag(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flag": flag})
}

// ReviewRequest is the payload for POST /v1/duplicate-flags/:id/review.
type ReviewRequest struct {
	ReviewerID string `json:"reviewerId" binding:"required"`
	Decision   string `json:"decision" binding:"required,oneof=approve reject"`
}

// Review handles POST /v1/duplicate-flags/:id/review
func (h *Handler) Review(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	flag, err := h.service.Review(c.Request.Context(), c.Param("id"), req.ReviewerID, req.Decision == "approve")
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flag": flag})
}
