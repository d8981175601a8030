package middleware

import (
	"strconv"
	"time"

	"github.com/discord2vrc/discord2vrc/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics 记录请求耗时，route 使用路由模板避免标签基数膨胀
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
