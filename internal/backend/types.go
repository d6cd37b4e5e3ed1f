package backend

import (
	"time"

	"github.com/eternisai/leadgen-assistant/internal/leads"
)

// GenerationRequest is the body of a lead generation job submission.
type GenerationRequest struct {
	Audience       string   `json:"audience"`
	Categories     []string `json:"categories"`
	Keywords       []string `json:"keywords"`
	Niche          string   `json:"niche"`
	Location       string   `json:"location"`
	RequestedCount int      `json:"requested_count"`
}

// SubmitResult is the backend's answer to a job submission.
// An empty JobID means the backend completed the generation synchronously.
type SubmitResult struct {
	JobID      string `json:"job_id,omitempty"`
	LeadsCount *int   `json:"leads_count,omitempty"`
	Message    string `json:"message,omitempty"`
}

// JobStatusPayload is the raw job status record returned by the backend.
//
// Example:
//
//	{"job_id": "job_123", "status": "in_progress", "progress": 40, "message": "Scraping websites"}
type JobStatusPayload struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`                  // "pending" | "in_progress" | "completed" | "failed"
	Progress     int    `json:"progress"`                // 0-100
	Message      string `json:"message,omitempty"`       // Human readable progress line
	LeadsCount   *int   `json:"leads_count,omitempty"`   // Set once completed
	ErrorMessage string `json:"error_message,omitempty"` // Set once failed
}

// leadsEnvelope accepts both the `leads` and the older `data` list shapes.
type leadsEnvelope struct {
	Leads []leads.Lead `json:"leads"`
	Data  []leads.Lead `json:"data"`
	Total int          `json:"total"`
}

// User is the authenticated account as returned by the backend.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	CompanyName      string    `json:"company_name,omitempty"`
	SubscriptionPlan string    `json:"subscription_plan"`
	LeadsQuota       int       `json:"leads_quota"`
	LeadsUsed        int       `json:"leads_used"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AuthResponse is returned by the login endpoint.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// errorBody is the error payload shape of the backend. Some endpoints use
// `message`, others `error`.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
