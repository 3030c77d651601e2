package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"boletin-backend/internal/faults"
	"boletin-backend/internal/shared/server/respond"
	"boletin-backend/internal/shared/telemetry"
)

// Recovery recovers from panics and returns a standardized error response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				reqID := RequestIDFromContext(c)
				telemetry.Error("panic", map[string]any{
					"request_id": reqID,
					"error":      rec,
					"stack":      string(debug.Stack()),
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
				})
				respond.Fault(c, faults.New(faults.KindUnknown, "panic recovered", map[string]any{
					"request_id": reqID,
				}))
				c.Abort()
			}
		}()
		c.Next()
	}
}
