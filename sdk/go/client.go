package ticklersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Tickler HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Task mirrors the API task model.
type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt int64  `json:"createdAt"`
	DueDate   string `json:"dueDate,omitempty"`
	DueTime   string `json:"dueTime,omitempty"`
	Notified  bool   `json:"notified"`
}

type Counts struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type TaskList struct {
	Filter string `json:"filter"`
	Items  []Task `json:"items"`
	Counts Counts `json:"counts"`
}

// TaskUpdate carries the fields to change; nil fields are left alone.
type TaskUpdate struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	DueDate   *string `json:"dueDate,omitempty"`
	DueTime   *string `json:"dueTime,omitempty"`
	Notified  *bool   `json:"notified,omitempty"`
}

type Alert struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	TaskID   string `json:"task_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Platform string `json:"platform"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListTasks returns the tasks matching filter (all, active, completed).
func (c *Client) ListTasks(ctx context.Context, filter string) (TaskList, error) {
	endpoint := "tasks"
	if filter != "" {
		endpoint += "?filter=" + url.QueryEscape(filter)
	}
	var resp TaskList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateTask adds a task with an optional due date and time.
func (c *Client) CreateTask(ctx context.Context, text, dueDate, dueTime string) (Task, error) {
	body := map[string]any{"text": text}
	if dueDate != "" {
		body["dueDate"] = dueDate
	}
	if dueTime != "" {
		body["dueTime"] = dueTime
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

func (c *Client) ToggleTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/toggle", url.PathEscape(id)), nil, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, u TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%s", url.PathEscape(id)), u, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%s", url.PathEscape(id)), nil, nil)
}

// ClearCompleted removes completed tasks and returns how many were removed.
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/clear-completed", nil, &resp)
	return resp.Removed, err
}

func (c *Client) Counts(ctx context.Context) (Counts, error) {
	var resp Counts
	err := c.do(ctx, http.MethodGet, "counts", nil, &resp)
	return resp, err
}

// Alerts returns recently fired alerts, newest first.
func (c *Client) Alerts(ctx context.Context, limit int) ([]Alert, error) {
	endpoint := "alerts"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Alert `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
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
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
