package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/pkg/logctx"
)

// RequestLoggerMiddleware attaches a logger carrying trace_id to gin.Context
// and to the request context, and echoes the trace id in X-Request-ID.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetString(logctx.KeyTraceID)
		reqLogger := base.With("trace_id", traceID)
		setLogger(c, reqLogger)
		if traceID != "" {
			c.Writer.Header().Set(HeaderRequestID, traceID)
		}
		c.Next()
	}
}

func setLogger(c *gin.Context, l *zap.SugaredLogger) {
	c.Set(logctx.KeyLogger, l)
	c.Request = c.Request.WithContext(logctx.WithLogger(c.Request.Context(), l))
}
