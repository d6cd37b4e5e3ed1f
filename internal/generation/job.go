package generation

import (
	"fmt"
	"strings"

	"github.com/eternisai/leadgen-assistant/internal/backend"
)

// JobState is the status of a backend generation job. The set of
// implementations is closed: Pending, InProgress, Completed and Failed.
type JobState interface {
	jobState()
	String() string
}

// Pending means the backend accepted the job but has not started it.
type Pending struct{}

// InProgress carries the progress reported by the backend.
type InProgress struct {
	Progress int
	Message  string
}

// Completed carries the number of generated leads when the backend reports it.
type Completed struct {
	LeadsCount *int
}

// Failed carries the backend's error message, possibly empty.
type Failed struct {
	Message string
}

func (Pending) jobState()    {}
func (InProgress) jobState() {}
func (Completed) jobState()  {}
func (Failed) jobState()     {}

func (Pending) String() string    { return "pending" }
func (InProgress) String() string { return "in_progress" }
func (Completed) String() string  { return "completed" }
func (Failed) String() string     { return "failed" }

// ParseJobState maps a wire status record onto a JobState.
func ParseJobState(p *backend.JobStatusPayload) (JobState, error) {
	if p == nil {
		return nil, fmt.Errorf("empty job status")
	}

	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "pending", "queued":
		return Pending{}, nil
	case "in_progress", "processing":
		return InProgress{Progress: clampProgress(p.Progress), Message: p.Message}, nil
	case "completed":
		return Completed{LeadsCount: p.LeadsCount}, nil
	case "failed":
		return Failed{Message: p.ErrorMessage}, nil
	default:
		return nil, fmt.Errorf("unknown job status %q", p.Status)
	}
}

func clampProgress(p int) int {
	return max(0, min(p, 100))
}
