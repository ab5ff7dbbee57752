package middleware

import (
	"strconv"
	"time"

	"civic-api/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics observes request latency by route template, so ids do not explode
// label cardinality. Unmatched routes are grouped under "unmatched".
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDurationMs.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).
			Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
}
