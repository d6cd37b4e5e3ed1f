package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError represents a simple standardized error response.
// Used for 400, 401, 404, 409, 500 and 502 errors that don't need specialized shapes.
type APIError struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// AbortWithStatus sends an APIError with the given status and aborts the request.
func AbortWithStatus(c *gin.Context, status int, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(status, NewAPIError(message, details))
}

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	AbortWithStatus(c, http.StatusBadRequest, message, details)
}

// AbortWithUnauthorized sends a 401 Unauthorized response and aborts the request.
func AbortWithUnauthorized(c *gin.Context, message string, details map[string]interface{}) {
	AbortWithStatus(c, http.StatusUnauthorized, message, details)
}

// AbortWithNotFound sends a 404 Not Found response and aborts the request.
func AbortWithNotFound(c *gin.Context, message string, details map[string]interface{}) {
	AbortWithStatus(c, http.StatusNotFound, message, details)
}

// AbortWithConflict sends a 409 Conflict response and aborts the request.
// Used when a conversation is in a phase that cannot accept the request.
func AbortWithConflict(c *gin.Context, message string, details map[string]interface{}) {
	AbortWithStatus(c, http.StatusConflict, message, details)
}

// AbortWithPreconditionRequired sends a 428 response, used for irreversible
// actions that were not explicitly confirmed.
func AbortWithPreconditionRequired(c *gin.Context, message string, details map[string]interface{}) {
	AbortWithStatus(c, http.StatusPreconditionRequired, message, details)
}

// AbortWithInternal sends a 500 Internal Server Error response and aborts the request.
func AbortWithInternal(c *gin.Context, message string, details map[string]interface{}) {
	AbortWithStatus(c, http.StatusInternalServerError, message, details)
}

// AbortWithBadGateway sends a 502 response for failures reported by the lead backend.
func AbortWithBadGateway(c *gin.Context, message string, details map[string]interface{}) {
	AbortWithStatus(c, http.StatusBadGateway, message, details)
}
