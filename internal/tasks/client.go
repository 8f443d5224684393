// Package tasks is the HTTP client for the remote task API. Every request is
// scoped to one conversation through the chat-id header; the task API filters
// and authorizes on it.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ChatIDHeader carries the conversation id on every request.
const ChatIDHeader = "chat-id"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Task is a task record as returned by the task API.
type Task struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// UpdateTaskRequest is the body of PUT /tasks/{id}. Nil fields are left
// unchanged by the task API.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// APIError is a non-2xx response from the task API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("task API error %d: %s", e.StatusCode, e.Body)
}

// NotFound reports whether the task did not exist for this chat.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Config holds task API client configuration.
type Config struct {
	// BaseURL is the API root; requests go to BaseURL + "/tasks".
	BaseURL string
	// Timeout for API requests
	Timeout time.Duration
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// Client is a stateless task API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a task API client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
}

// ListTasks returns the chat's tasks. A nil completed returns all tasks.
func (c *Client) ListTasks(ctx context.Context, chatID string, completed *bool) ([]Task, error) {
	query := url.Values{}
	if completed != nil {
		query.Set("completed", strconv.FormatBool(*completed))
	}
	var out []Task
	if err := c.do(ctx, http.MethodGet, "/tasks", query, chatID, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Task{}
	}
	return out, nil
}

// GetTask returns a single task.
func (c *Client) GetTask(ctx context.Context, chatID string, id int64) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, chatID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTask creates a task and returns the stored record.
func (c *Client) CreateTask(ctx context.Context, chatID string, req CreateTaskRequest) (*Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	var out Task
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, chatID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask applies the non-nil fields of req to a task.
func (c *Client) UpdateTask(ctx context.Context, chatID string, id int64, req UpdateTaskRequest) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), nil, chatID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask deletes a task and returns the record as it was before deletion.
func (c *Client) DeleteTask(ctx context.Context, chatID string, id int64) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodDelete, taskPath(id), nil, chatID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func taskPath(id int64) string {
	return "/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, chatID string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("task API base URL is not configured")
	}
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("chat id is required")
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(ChatIDHeader, chatID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			respBody = []byte("(failed to read response body)")
		}
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
