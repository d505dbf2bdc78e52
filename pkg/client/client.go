package client

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

// RequestEditorFn mutates an outgoing request before it is sent — the
// seam options.go's header injection hooks into.
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// Client is a plain HTTP client for the task queue API.
type Client struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// New creates a Client pointed at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: base URL must be absolute, got %q", baseURL)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    o,
		ws:      newWebSocketClient(baseURL, o.apiKey),
	}, nil
}

// CreateTaskRequest is the payload for SubmitTask.
type CreateTaskRequest struct {
	Name           string                 `json:"name"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	Priority       *int                   `json:"priority,omitempty"`
	Queue          string                 `json:"queue,omitempty"`
	MaxRetries     *int                   `json:"max_retries,omitempty"`
	TimeoutSeconds *int                   `json:"timeout_seconds,omitempty"`
}

// TaskResponse mirrors the server's task JSON representation.
type TaskResponse struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Payload        map[string]interface{} `json:"payload"`
	Status         string                 `json:"status"`
	Priority       int                    `json:"priority"`
	Queue          string                 `json:"queue"`
	CreatedAt      time.Time              `json:"created_at"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	Result         map[string]interface{} `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Retries        int                    `json:"retries"`
	MaxRetries     int                    `json:"max_retries"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
}

// HealthResponse mirrors GET /admin/health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// WorkerInfo mirrors a worker's published liveness record.
type WorkerInfo struct {
	ID              string    `json:"worker_id"`
	Queues          []string  `json:"queues"`
	State           string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	CurrentTaskID   string    `json:"current_task_id,omitempty"`
	CurrentTaskName string    `json:"current_task_name,omitempty"`
	TasksCompleted  int64     `json:"tasks_completed"`
	TasksFailed     int64     `json:"tasks_failed"`
	ActiveTasks     int       `json:"active_tasks"`
	Concurrency     int       `json:"concurrency"`
}

// WorkerListResponse mirrors GET /admin/workers.
type WorkerListResponse struct {
	Workers []WorkerInfo `json:"workers"`
	Count   int          `json:"count"`
}

// QueueStats mirrors a single queue's broker-reported statistics.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	DeadLetter int64 `json:"dead_letter"`
	Paused     bool  `json:"paused"`
}

// QueueSummary mirrors one entry of GET /admin/queues.
type QueueSummary struct {
	Name  string      `json:"name"`
	Stats *QueueStats `json:"stats"`
}

// QueueListResponse mirrors GET /admin/queues.
type QueueListResponse struct {
	Queues []QueueSummary `json:"queues"`
}

// TaskListResponse mirrors GET /api/v1/tasks.
type TaskListResponse struct {
	Queue      string          `json:"queue"`
	Tasks      []*TaskResponse `json:"tasks"`
	TotalCount int             `json:"total_count"`
}

// apiError is the shape of an error body the server returns.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SubmitTask submits a new task and returns the server's record of it.
func (c *Client) SubmitTask(ctx context.Context, req CreateTaskRequest) (*TaskResponse, error) {
	var resp TaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTaskByID fetches a single task by ID.
func (c *Client) GetTaskByID(ctx context.Context, id string) (*TaskResponse, error) {
	var resp TaskResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelTask cancels a still-pending task.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+id, nil, nil)
}

// ListTasks lists pending tasks on the caller's default queue.
func (c *Client) ListTasks(ctx context.Context) (*TaskListResponse, error) {
	var resp TaskListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckHealth checks broker reachability through the admin surface.
func (c *Client) CheckHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/admin/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAllWorkers lists every registered worker.
func (c *Client) ListAllWorkers(ctx context.Context) (*WorkerListResponse, error) {
	var resp WorkerListResponse
	if err := c.do(ctx, http.MethodGet, "/admin/workers", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWorker fetches a single worker's liveness record.
func (c *Client) GetWorker(ctx context.Context, id string) (*WorkerInfo, error) {
	var resp WorkerInfo
	if err := c.do(ctx, http.MethodGet, "/admin/workers/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetQueueStatistics lists every configured queue's current stats.
func (c *Client) GetQueueStatistics(ctx context.Context) (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/admin/queues", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PauseQueue pauses a queue so workers stop dequeuing from it.
func (c *Client) PauseQueue(ctx context.Context, queue string) error {
	return c.do(ctx, http.MethodPost, "/admin/queues/"+queue+"/pause", nil, nil)
}

// ResumeQueue resumes a paused queue.
func (c *Client) ResumeQueue(ctx context.Context, queue string) error {
	return c.do(ctx, http.MethodPost, "/admin/queues/"+queue+"/resume", nil, nil)
}

// RetryTask forces a retry of a failed task, overriding its retry budget.
func (c *Client) RetryTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/admin/tasks/"+id+"/retry", nil, nil)
}

// ConnectWebSocket opens the event stream.
func (c *Client) ConnectWebSocket(ctx context.Context) error {
	return c.ws.Connect(ctx)
}

// CloseWebSocket closes the event stream.
func (c *Client) CloseWebSocket() error {
	return c.ws.Close()
}

// Events returns the channel of events received over the WebSocket.
func (c *Client) Events() <-chan *Event {
	return c.ws.Events()
}

// SubscribeEvents requests the server only relay the given event types.
func (c *Client) SubscribeEvents(eventTypes ...EventType) error {
	return c.ws.Subscribe(eventTypes...)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.opts.applyHeaders()(ctx, req); err != nil {
		return fmt.Errorf("client: apply headers: %w", err)
	}

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("client: %s (status %d): %s", path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("client: %s: unexpected status %d", path, resp.StatusCode)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("client: decode response body: %w", err)
	}
	return nil
}
