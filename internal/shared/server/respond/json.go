package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the standard success payload.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// OK writes a 200 OK success envelope.
func OK(c *gin.Context, data interface{}, message string) {
	JSON(c, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}
