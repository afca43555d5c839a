package batch

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/pagination"
)

// Handler provides HTTP endpoints for batch operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new batch handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up batch routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/batches", h.Create)
	r.GET("/batches", h.List)
	r.GET("/batches/:id", h.Get)
	r.POST("/batches/:id/publish", h.Publish)
	r.POST("/batches/:id/process", h.Process)
}

// CreateRequest is the payload for POST /v1/batches.
type CreateRequest struct {
	Name      string   `json:"name" binding:"required"`
	Type      string   `json:"type" binding:"required"`
	CreatorID string   `json:"creatorId" binding:"required"`
	EntryIDs  []string `json:"entryIds" binding:"required,min=1"`
}

// Create handles POST /v1/batches
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	b, err := h.service.Create(c.Request.Context(), req.Name, Type(req.Type), req.CreatorID, req.EntryIDs)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"batch": b})
}

// List handles GET /v1/batches
func (h *Handler) List(c *gin.Context) {
	page := pagination.Normalize(queryInt(c, "page"), queryInt(c, "pageSize"))
	status := Status(c.Query("status"))

	batches, total, err := h.service.List(c.Request.Context(), status, page.Size, page.Offset())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, pagination.Result[*Batch]{
		Items:      batches,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalCount: total,
	})
}

// Get handles GET /v1/batches/:id
func (h *Handler) Get(c *gin.Context) {
	b, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"batch": b})
}

// OperatorRequest is the payload for publish and process calls.
type OperatorRequest struct {
	OperatorID string `json:"operatorId" binding:"required"`
}

// Publish handles POST /v1/batches/:id/publish
func (h *Handler) Publish(c *gin.Context) {
	var req OperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	b, err := h.service.Publish(c.Request.Context(), c.Param("id"), req.OperatorID)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"batch": b})
}

// Process handles POST /v1/batches/:id/process
func (h *Handler) Process(c *gin.Context) {
	var req OperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result, err := h.service.Process(c.Request.Context(), c.Param("id"), req.OperatorID)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

func queryInt(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}
