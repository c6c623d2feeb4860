// README: Request logging middleware.
package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fieldops/internal/platform/obs"
)

const requestIDHeader = "X-Request-ID"

// Logging tags each request with an id (reusing X-Request-ID when sent) and logs
// method, path, status and duration once the handler returns.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(obs.WithRequestID(c.Request.Context(), id))

		start := time.Now()
		c.Next()
		log.Printf("req_id=%s %s %s status=%d dur=%s", id, c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
