package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyJobID is returned when a status lookup is attempted without a job.
var ErrEmptyJobID = errors.New("job id is required")

// APIError is a non-2xx answer from the lead backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("backend %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// UserMessage returns the backend's own message so it can be shown verbatim.
func (e *APIError) UserMessage() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
