// internal/pkg/response/response.go

// Package response renders the JSON envelope every API endpoint speaks:
// a success flag, a human-readable message, and either a data payload or
// an error string. Clients branch on the flag, not on HTTP semantics.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the wire shape of every API reply.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success writes a successful envelope. A zero status defaults to 200.
func Success(c *gin.Context, status int, message string, data any) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error writes a failure envelope and aborts the handler chain so no
// later middleware runs on a request that already failed. An optional
// data value carries structured detail alongside the error string.
func Error(c *gin.Context, code int, message string, err error, data ...any) {
	c.Abort()

	env := Envelope{
		Success: false,
		Message: message,
	}
	if err != nil {
		env.Error = err.Error()
	}
	if len(data) > 0 {
		env.Data = data[0]
	}

	c.JSON(code, env)
}

// Unauthorized rejects a request that lacks a valid credential.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// NotFound reports that the addressed resource does not exist.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}
