package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edupoint/rewards-api/internal/service"
)

// Metrics records a latency and count observation for every request. The
// route template is preferred over the raw path so IDs do not explode the
// label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
