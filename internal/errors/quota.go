package errors

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// QuotaError represents a standardized 429 response when a generation request
// would exceed the account's lead quota.
type QuotaError struct {
	Error     string `json:"error"`
	Plan      string `json:"plan,omitempty"`
	Quota     int    `json:"quota"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
	Requested int    `json:"requested"`
}

// AbortWithQuotaExceeded sends a 429 response with the QuotaError and aborts the request.
func AbortWithQuotaExceeded(c *gin.Context, err *QuotaError) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, err)
}

// QuotaExceeded creates a QuotaError, wording it the way the upgrade prompt does.
func QuotaExceeded(plan string, quota, used, requested int) *QuotaError {
	remaining := quota - used
	if remaining < 0 {
		remaining = 0
	}

	msg := "You have reached your lead generation limit."
	if remaining > 0 {
		msg = fmt.Sprintf("This would exceed your quota. You have %d leads remaining. Consider upgrading for unlimited leads.", remaining)
	}

	return &QuotaError{
		Error:     msg,
		Plan:      plan,
		Quota:     quota,
		Used:      used,
		Remaining: remaining,
		Requested: requested,
	}
}
