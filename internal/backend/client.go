package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eternisai/leadgen-assistant/internal/leads"
	"github.com/eternisai/leadgen-assistant/internal/logger"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// Client talks to the lead generation REST backend.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func()
	logger         *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource attaches bearer tokens from ts.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHook registers fn to run whenever a non-auth endpoint answers 401.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new backend client.
func NewClient(baseURL string, timeout time.Duration, logger *logger.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.WithComponent("backend_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitGenerationJob starts an asynchronous lead generation job.
func (c *Client) SubmitGenerationJob(ctx context.Context, req GenerationRequest) (*SubmitResult, error) {
	if req.Categories == nil {
		req.Categories = []string{}
	}

	var result SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/leads/generate-job", req, &result); err != nil {
		return nil, err
	}

	c.logger.Info("submitted generation job",
		slog.String("job_id", result.JobID),
		slog.Int("requested_count", req.RequestedCount))

	return &result, nil
}

// GetJobStatus fetches the current status of a generation job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatusPayload, error) {
	if jobID == "" {
		return nil, ErrEmptyJobID
	}

	var status JobStatusPayload
	path := fmt.Sprintf("/api/leads/job/%s/status", url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}

	c.logger.Debug("polled job status",
		slog.String("job_id", jobID),
		slog.String("status", status.Status),
		slog.Int("progress", status.Progress))

	return &status, nil
}

// ListLeads fetches the full lead set of the current account.
func (c *Client) ListLeads(ctx context.Context) ([]leads.Lead, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/leads", nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []leads.Lead{}, nil
	}

	if trimmed[0] == '[' {
		var list []leads.Lead
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode leads: %w", err)
		}
		return list, nil
	}

	var env leadsEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("failed to decode leads: %w", err)
	}
	switch {
	case env.Leads != nil:
		return env.Leads, nil
	case env.Data != nil:
		return env.Data, nil
	default:
		return []leads.Lead{}, nil
	}
}

// UpdateLead applies a partial update to a lead and returns the stored record.
func (c *Client) UpdateLead(ctx context.Context, id string, patch leads.LeadPatch) (*leads.Lead, error) {
	var lead leads.Lead
	if err := c.do(ctx, http.MethodPut, "/api/leads/"+url.PathEscape(id), patch, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// DeleteLead removes a lead.
func (c *Client) DeleteLead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/leads/"+url.PathEscape(id), nil, nil)
}

// ListTags fetches the tags of the current account.
func (c *Client) ListTags(ctx context.Context) ([]leads.Tag, error) {
	var tags []leads.Tag
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// TagLead attaches a tag to a lead.
func (c *Client) TagLead(ctx context.Context, leadID, tagID string) error {
	return c.do(ctx, http.MethodPost, tagLeadPath(leadID, tagID), nil, nil)
}

// UntagLead detaches a tag from a lead.
func (c *Client) UntagLead(ctx context.Context, leadID, tagID string) error {
	return c.do(ctx, http.MethodDelete, tagLeadPath(leadID, tagID), nil, nil)
}

func tagLeadPath(leadID, tagID string) string {
	return fmt.Sprintf("/api/tags/%s/leads/%s", url.PathEscape(tagID), url.PathEscape(leadID))
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}

	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the current session token on the backend.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// GetProfile fetches the current user's profile.
func (c *Client) GetProfile(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/api/users/profile", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do performs a JSON request. out may be nil when the body is ignored.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
		}

		var eb errorBody
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil && json.Unmarshal(data, &eb) == nil {
			apiErr.Message = eb.Message
			if apiErr.Message == "" {
				apiErr.Message = eb.Error
			}
		}

		c.logger.Warn("backend returned error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status_code", resp.StatusCode),
			slog.String("message", apiErr.Message))

		if resp.StatusCode == http.StatusUnauthorized && !strings.HasPrefix(path, "/api/auth/") && c.onUnauthorized != nil {
			c.onUnauthorized()
		}

		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
