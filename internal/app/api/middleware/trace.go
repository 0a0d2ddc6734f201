package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fatflowers/cashier-stripe/pkg/logctx"
)

const HeaderRequestID = "X-Request-ID"

// TraceMiddleware assigns the request its trace id. A client supplied
// X-Request-ID is kept, otherwise a new UUID is generated.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderRequestID)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(logctx.KeyTraceID, traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}
