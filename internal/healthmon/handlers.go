package healthmon

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for integration health.
type Handler struct {
	monitor *Monitor
}

// NewHandler creates a new integration health handler.
func NewHandler(monitor *Monitor) *Handler {
	return &Handler{monitor: monitor}
}

// RegisterRoutes sets up integration health routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health/integrations", h.Integrations)
	r.GET("/health/integrations/stats", h.Stats)
	r.GET("/health/alerts", h.Alerts)
	r.POST("/health/test-connectivity", h.TestConnectivity)
}

// Integrations handles GET /v1/health/integrations
//
// Serves the most recent probe results without contacting the endpoints.
func (h *Handler) Integrations(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Latest())
}

// Stats handles GET /v1/health/integrations/stats
func (h *Handler) Stats(c *gin.Context) {
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "window must be a duration such as 1h or 24h",
			})
			return
		}
		window = parsed
	}

	c.JSON(http.StatusOK, gin.H{"stats": h.monitor.Stats(window)})
}

// Alerts handles GET /v1/health/alerts
func (h *Handler) Alerts(c *gin.Context) {
	includeResolved := c.Query("includeResolved") == "true"
	alerts := h.monitor.Alerts(includeResolved)
	if alerts == nil {
		alerts = []*Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// TestConnectivity handles POST /v1/health/test-connectivity
//
// Probes every endpoint on demand, recording the results the same way
// the background timer does.
func (h *Handler) TestConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.ProbeAll(c.Request.Context()))
}
