// Package middleware contains Gin middleware shared across the HTTP
// surface (§2 AMBIENT STACK).
package middleware

import (
	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderXCorrelationID is the header carrying a request's correlation id,
// generated if the caller didn't supply one.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID stamps every request and response with a correlation id,
// stored in Gin's context under the same key internal/logging reads from a
// context.Context, so a handler's logs and the eventual HTTP response share
// one id.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Header(HeaderXCorrelationID, correlationID)
		c.Set(string(logging.CorrelationIDKey), correlationID)
		c.Next()
	}
}
