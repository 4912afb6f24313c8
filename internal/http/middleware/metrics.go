// README: Prometheus middleware; labels requests by route template.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"yatri/internal/metrics"
)

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
