// Package client is a typed HTTP client for the task API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/models"
	"github.com/Antonioedwardsd/devlab/internal/validation"
)

const DefaultBasePath = "/api/tasks"

// TokenSource supplies the bearer token attached to each request. An empty
// token sends the request without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Details    []validation.Violation
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return fmt.Sprintf("api error %d: %s (%s)", e.StatusCode, e.Message, strings.Join(parts, "; "))
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithBasePath selects the collection route, /api/tasks or /api/todos.
func WithBasePath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.basePath = "/" + strings.Trim(path, "/")
		}
	}
}

type Client struct {
	baseURL    string
	basePath   string
	httpClient *http.Client
	tokens     TokenSource
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		basePath:   DefaultBasePath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type updateResponse struct {
	Message string      `json:"message"`
	Task    models.Task `json:"task"`
}

func (c *Client) ListTasks(ctx context.Context, completed *bool) ([]models.Task, error) {
	query := url.Values{}
	if completed != nil {
		query.Set("completed", strconv.FormatBool(*completed))
	}

	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "", query, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, id, nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) CreateTask(ctx context.Context, req validation.CreateTaskRequest) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPost, "", nil, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask sends only the fields set on req.
func (c *Client) UpdateTask(ctx context.Context, id string, req validation.UpdateTaskRequest) (*models.Task, error) {
	var resp updateResponse
	if err := c.do(ctx, http.MethodPut, id, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, id, nil, nil, nil)
}

func (c *Client) endpoint(id string, query url.Values) string {
	endpoint := c.baseURL + c.basePath
	if id != "" {
		endpoint += "/" + url.PathEscape(id)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, id string, query url.Values, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(id, query), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error   string                 `json:"error"`
		Message string                 `json:"message"`
		Details []validation.Violation `json:"details"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		if body.Message != "" {
			apiErr.Message += ": " + body.Message
		}
		apiErr.Details = body.Details
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
