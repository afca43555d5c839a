package recon

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/relfin/disburse/internal/faults"
	"github.com/relfin/disburse/internal/pagination"
)

// Handler provides HTTP endpoints for reconciliation.
type Handler struct {
	service *Service
}

// NewHandler creates a new reconciliation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up reconciliation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reconciliation/import", h.Import)
	r.POST("/reconciliation/match", h.Match)
	r.GET("/reconciliation/status", h.Status)
	r.GET("/reconciliation/records", h.List)
	r.GET("/reconciliation/records/:id", h.Get)
}

// ImportRequest is the payload for POST /v1/reconciliation/import.
type ImportRequest struct {
	Content    string `json:"content" binding:"required"`
	Format     string `json:"format" binding:"omitempty,oneof=csv tsv"`
	ImportedBy string `json:"importedBy" binding:"required"`
}

// Import handles POST /v1/reconciliation/import
func (h *Handler) Import(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if req.Format == "" {
		req.Format = "csv"
	}

	result, err := h.service.ImportFile(c.Request.Context(), req.Content, req.Format, req.ImportedBy)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// Match handles POST /v1/reconciliation/match
func (h *Handler) Match(c *gin.Context) {
	summary, err := h.service.MatchAll(c.Request.Context())
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// Status handles GET /v1/reconciliation/status
func (h *Handler) Status(c *gin.Context) {
	report, err := h.service.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// List handles GET /v1/reconciliation/records
func (h *Handler) List(c *gin.Context) {
	page := pagination.Normalize(queryInt(c, "page"), queryInt(c, "pageSize"))
	status := Status(c.Query("status"))

	records, total, err := h.service.List(c.Request.Context(), status, page.Size, page.Offset())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, pagination.Result[*Record]{
		Items:      records,
		Page:       page.Number,
		PageSize:   page.Size,
		TotalCount: total,
	})
}

// Get handles GET /v1/reconciliation/records/:id
func (h *Handler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{
			"error":   faults.Code(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": record})
}

func queryInt(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}
