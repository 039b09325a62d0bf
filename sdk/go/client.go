package propchecksdk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal PropCheck HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 30 * time.Second,
	}
}

// Rules mirrors the challenge rule set accepted by the API.
type Rules struct {
	MaxDrawdownPercent  float64  `json:"max_drawdown_percent"`
	ProfitTargetPercent float64  `json:"profit_target_percent"`
	MaxDailyLossPercent *float64 `json:"max_daily_loss_percent,omitempty"`
}

// CheckRequest is a challenge evaluation submission.
type CheckRequest struct {
	UserID         string  `json:"user_id"`
	ChallengeID    string  `json:"challenge_id"`
	TerminalLogin  string  `json:"terminal_login"`
	TerminalPass   string  `json:"terminal_password"`
	TerminalServer string  `json:"terminal_server"`
	InitialBalance float64 `json:"initial_balance"`
	Rules          Rules   `json:"rules"`
	RulesPreset    string  `json:"rules_preset,omitempty"`
	CallbackURL    string  `json:"callback_url,omitempty"`
}

// JobSubmitted acknowledges a queued check.
type JobSubmitted struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Job is the status of a submitted check, with the stored result once
// completed.
type Job struct {
	JobID       string          `json:"job_id"`
	UserID      string          `json:"user_id"`
	ChallengeID string          `json:"challenge_id"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	CompletedAt *string         `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
}

// CheckResult is the evaluation verdict, as delivered to webhooks and by the
// synchronous endpoint.
type CheckResult struct {
	JobID       string           `json:"job_id"`
	UserID      string           `json:"user_id"`
	ChallengeID string           `json:"challenge_id"`
	Status      string           `json:"status"`
	Metrics     map[string]any   `json:"metrics"`
	Violations  []map[string]any `json:"violations"`
	Timestamp   string           `json:"timestamp"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SubmitCheck queues a challenge evaluation.
func (c *Client) SubmitCheck(ctx context.Context, req CheckRequest) (JobSubmitted, error) {
	var resp JobSubmitted
	err := c.do(ctx, http.MethodPost, "api/v1/check", req, &resp)
	return resp, err
}

// SyncCheck runs a challenge evaluation inline and returns the verdict.
func (c *Client) SyncCheck(ctx context.Context, req CheckRequest) (CheckResult, error) {
	var resp CheckResult
	err := c.do(ctx, http.MethodPost, "api/v1/check/sync", req, &resp)
	return resp, err
}

// JobStatus fetches one job by id.
func (c *Client) JobStatus(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, "api/v1/job/"+url.PathEscape(jobID), nil, &resp)
	return resp, err
}

// Jobs lists the caller's recent jobs.
func (c *Client) Jobs(ctx context.Context, limit int) ([]Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	endpoint := "api/v1/jobs"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Jobs, err
}

// VerifySignature checks the X-Signature header of a received webhook against
// the exact body bytes and the tenant's webhook secret.
func VerifySignature(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
