package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/videoflix/streamcore/internal/logging"
)

// RequestLogger logs one structured line per request.
func RequestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.LogHTTPRequest(
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
