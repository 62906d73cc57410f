package guardianeye

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the GuardianEye REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Credentials represents the password grant used to obtain access tokens.
type Credentials struct {
	GrantType string `json:"grant_type"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Token represents an issued access token pair.
type Token struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// ExecuteRequest is the payload for a routed or direct analysis request.
type ExecuteRequest struct {
	Query     string         `json:"query"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
}

// ExecuteResponse mirrors the orchestrator response envelope. A non-empty
// Error field indicates the request failed.
type ExecuteResponse struct {
	Result        string         `json:"result"`
	ExecutionPath []string       `json:"execution_path"`
	SessionID     string         `json:"session_id"`
	ExecutionTime float64        `json:"execution_time"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// JobSubmission represents the payload required to enqueue an analysis job.
type JobSubmission struct {
	ID        string         `json:"id,omitempty"`
	Query     string         `json:"query"`
	Agent     string         `json:"agent,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
}

// JobResult holds the final orchestration output of a succeeded job.
type JobResult struct {
	Result        string   `json:"result"`
	ExecutionPath []string `json:"execution_path,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	Agent         string   `json:"agent,omitempty"`
}

// Job contains the server side view of an analysis job.
type Job struct {
	ID         string         `json:"id"`
	Query      string         `json:"query"`
	Agent      string         `json:"agent,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *JobResult     `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// JobStats aggregates per-status job counts.
type JobStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListJobsOptions narrows the job listing query.
type ListJobsOptions struct {
	Limit    int
	Offset   int
	Statuses []string
	Query    string
	// Ascending switches the sort order to oldest-first.
	Ascending bool
}

// Document is a knowledge base entry.
type Document struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("guardianeye api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("guardianeye api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the GuardianEye API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Authenticate exchanges a username and password for an access token and
// stores it for subsequent calls.
func (c *Client) Authenticate(ctx context.Context, username, password string) (Token, error) {
	creds := Credentials{GrantType: "password", Username: username, Password: password}
	var token Token
	if err := c.post(ctx, "/api/v1/auth/token", creds, &token, false); err != nil {
		return Token{}, err
	}
	c.mu.Lock()
	c.accessToken = token.AccessToken
	c.mu.Unlock()
	return token, nil
}

// Execute runs a query through the full two-level routing pipeline.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	var resp ExecuteResponse
	if err := c.post(ctx, "/api/v1/execute", req, &resp, true); err != nil {
		return ExecuteResponse{}, err
	}
	return resp, nil
}

// ExecuteAgent dispatches a query directly to a named specialist, bypassing
// routing.
func (c *Client) ExecuteAgent(ctx context.Context, agent string, req ExecuteRequest) (ExecuteResponse, error) {
	if agent == "" {
		return ExecuteResponse{}, errors.New("guardianeye: agent name is required")
	}
	var resp ExecuteResponse
	if err := c.post(ctx, "/api/v1/agents/"+url.PathEscape(agent), req, &resp, true); err != nil {
		return ExecuteResponse{}, err
	}
	return resp, nil
}

// SubmitJob enqueues an asynchronous analysis job.
func (c *Client) SubmitJob(ctx context.Context, submission JobSubmission) (Job, error) {
	var job Job
	if err := c.post(ctx, "/api/v1/jobs", submission, &job, true); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob fetches job details by identifier.
func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.New("guardianeye: job id is required")
	}
	var job Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(jobID), &job, true); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ListJobs returns jobs matching the provided filters, newest first unless
// Ascending is set.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) ([]Job, error) {
	values := url.Values{}
	if opts.Limit > 0 {
		values.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		values.Set("offset", strconv.Itoa(opts.Offset))
	}
	if len(opts.Statuses) > 0 {
		values.Set("status", strings.Join(opts.Statuses, ","))
	}
	if opts.Query != "" {
		values.Set("q", opts.Query)
	}
	if opts.Ascending {
		values.Set("order", "asc")
	}
	endpoint := "/api/v1/jobs"
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var jobs []Job
	if err := c.get(ctx, endpoint, &jobs, true); err != nil {
		return nil, err
	}
	return jobs, nil
}

// JobStats returns aggregate counts across all jobs.
func (c *Client) JobStats(ctx context.Context) (JobStats, error) {
	var stats JobStats
	if err := c.get(ctx, "/api/v1/jobs/stats", &stats, true); err != nil {
		return JobStats{}, err
	}
	return stats, nil
}

// WaitForJob polls a job until it reaches a terminal status or the context
// expires.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return Job{}, err
		}
		if job.Status == "succeeded" || job.Status == "failed" {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SearchKnowledge performs a relevance search against the knowledge base.
func (c *Client) SearchKnowledge(ctx context.Context, query string, topK int) ([]Document, error) {
	if query == "" {
		return nil, errors.New("guardianeye: query is required")
	}
	values := url.Values{}
	values.Set("q", query)
	if topK > 0 {
		values.Set("k", strconv.Itoa(topK))
	}
	var docs []Document
	if err := c.get(ctx, "/api/v1/knowledge?"+values.Encode(), &docs, true); err != nil {
		return nil, err
	}
	return docs, nil
}

// AddKnowledge ingests documents into the knowledge base.
func (c *Client) AddKnowledge(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return errors.New("guardianeye: at least one document is required")
	}
	return c.post(ctx, "/api/v1/knowledge", docs, nil, true)
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any, withAuth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body), withAuth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any, withAuth bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, withAuth)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, withAuth bool) (*http.Request, error) {
	raw := endpoint
	var query string
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		query = raw[idx+1:]
		raw = raw[:idx]
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, raw), RawQuery: query}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// 未登录时也允许调用，服务端在关闭认证的部署下直接放行。
	if withAuth {
		if token := c.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
