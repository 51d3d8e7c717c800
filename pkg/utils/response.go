package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scrapewatch/scrapewatch-backend-go/pkg/errors"
)

// Response represents a standard API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// SendSuccess sends a successful response
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendCreated sends a successful creation response
func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendError sends an error response
func SendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success:   false,
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendAppError sends an error response with the status code carried by an
// application error; other error types map to 500.
func SendAppError(c *gin.Context, err error) {
	message := err.Error()
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
		if appErr.Details != "" {
			message = appErr.Message + ": " + appErr.Details
		}
	}
	SendError(c, errors.GetStatusCode(err), message)
}
