package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/pkg/logger"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an identifier, honoring one supplied by the
// client, and threads it through the response header, the gin context, and
// the request context so log lines can be correlated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		return requestID.(string)
	}
	return ""
}

// FileID copies the fileId route parameter into the request context so every
// log line emitted while handling the request carries it.
func FileID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if fileID := c.Param("fileId"); fileID != "" {
			ctx := context.WithValue(c.Request.Context(), logger.FileIDKey, fileID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
