package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

const (
	defaultTimeout        = 10 * time.Second
	processPath           = "process"
	responseBodyReadLimit = 1024
)

var errBaseURLRequired = errors.New("worker base url is required")

// Client submits processing jobs to the external AI worker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds every request sent to the worker.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithToken sets the bearer token presented to the worker.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// NewClient builds a worker client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	MaterialRef string        `json:"material_ref"`
	MaterialID  uuid.UUID     `json:"material_id"`
	JobID       uuid.UUID     `json:"job_id"`
	JobType     enums.JobType `json:"job_type"`
}

// StatusError is returned when the worker answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("worker returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("worker returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Submit posts the job to the worker. Any 2xx is acceptance; the status code
// is returned so callers can log it. No retries are attempted.
func (c *Client) Submit(ctx context.Context, req ProcessRequest) (int, error) {
	if c == nil {
		return 0, errors.New("worker client not configured")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal process request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+processPath, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build process request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if reqID := logger.RequestIDFromContext(ctx); reqID != "" {
		httpReq.Header.Set("X-Request-Id", reqID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("execute process request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(strings.ToValidUTF8(string(msg), ""))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseBodyReadLimit))
	return resp.StatusCode, nil
}
