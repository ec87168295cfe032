package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// PrometheusMiddleware records request latency by route template.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		telemetry.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			routePath(c),
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration)
	}
}

// routePath returns the matched route template so order IDs and symbols do
// not explode label cardinality.
func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
