package respond

import (
	"github.com/gin-gonic/gin"

	"boletin-backend/internal/faults"
	"boletin-backend/internal/shared/telemetry"
)

// ErrorResponse wraps a classified failure. Data optionally carries a
// degraded payload, such as the sentinel analysis body.
type ErrorResponse struct {
	Success bool             `json:"success"`
	Error   *faults.Envelope `json:"error"`
	Data    interface{}      `json:"data,omitempty"`
}

// Fault sends the HTTP rendering of a classified failure. The response
// status always comes from the failure kind.
func Fault(c *gin.Context, env *faults.Envelope) {
	FaultData(c, env, nil)
}

// FaultData sends a classified failure together with a degraded payload.
func FaultData(c *gin.Context, env *faults.Envelope, data interface{}) {
	telemetry.Error("http.error", map[string]any{
		"status":     env.HTTPStatus,
		"kind":       string(env.Kind),
		"message":    env.Message,
		"retryable":  env.Retryable,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	})

	c.AbortWithStatusJSON(env.HTTPStatus, ErrorResponse{Error: env, Data: data})
}
