//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/api"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/api/handlers"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/config"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/events"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/logger"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/observer"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/worker"
)

func init() {
	logger.Init("error", false)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "localhost",
			Port:         8080,
			AdminPort:    8081,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Broker: config.BrokerConfig{
			DefaultQueue:     "default",
			MaxRetries:       3,
			ActiveTimeout:    30 * time.Second,
			StaleTimeout:     60 * time.Second,
			RecoveryInterval: 20 * time.Second,
		},
		Worker: config.WorkerConfig{
			ID:                "test-worker",
			Queues:            []string{"default"},
			Concurrency:       2,
			TaskTimeout:       5 * time.Second,
			HeartbeatInterval: 1 * time.Second,
			DequeueTimeout:    200 * time.Millisecond,
			ShutdownTimeout:   5 * time.Second,
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func setupTestServer(t *testing.T) (*api.Server, *broker.Broker, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	b := broker.NewWithClient(client, &cfg.Broker)
	obs := observer.New(b, cfg.Broker.ActiveTimeout, cfg.Broker.StaleTimeout)
	publisher := events.NewRedisPubSub(client)

	server := api.NewServer(cfg, b, obs, publisher, []string{"default"})

	cleanup := func() {
		publisher.Close()
		client.Close()
		mr.Close()
	}

	return server, b, cleanup
}

func TestTaskLifecycle_CreateAndGet(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	createReq := handlers.CreateTaskRequest{
		Name:       "test-task",
		Payload:    map[string]interface{}{"key": "value"},
		Priority:   8,
		MaxRetries: intPtr(5),
	}
	body, _ := json.Marshal(createReq)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var created task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "test-task", created.Name)
	assert.Equal(t, 8, created.Priority)
	assert.Equal(t, task.StatusPending, created.Status)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+created.ID, nil)
	w = httptest.NewRecorder()

	server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var fetched task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))

	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Name, fetched.Name)
}

func TestTaskLifecycle_Cancel(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	createReq := handlers.CreateTaskRequest{
		Name:     "cancellable-task",
		Priority: 5,
	}
	body, _ := json.Marshal(createReq)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/"+created.ID, nil)
	w = httptest.NewRecorder()

	server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var cancelResp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelResp))
	assert.Equal(t, "cancelled", cancelResp["status"])
}

func TestTaskLifecycle_ListPending(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	for _, p := range []int{1, 5, 10, 3} {
		createReq := handlers.CreateTaskRequest{
			Name:     "priority-task",
			Priority: p,
		}
		body, _ := json.Marshal(createReq)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var listResp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))

	assert.Contains(t, listResp, "tasks")
	assert.Contains(t, listResp, "total_count")
	assert.EqualValues(t, 4, listResp["total_count"])
}

func TestTaskLifecycle_GetNotFound(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/nonexistent-id", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints_Health(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestAdminEndpoints_ListWorkers(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/workers", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "workers")
	assert.Contains(t, resp, "count")
}

func TestAdminEndpoints_GetQueues(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/queues", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "queues")
}

func TestAdminEndpoints_DLQ(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/dlq?queue=default", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "tasks")
	assert.Contains(t, resp, "count")
}

func TestTaskLifecycle_RetryThenSucceed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testConfig()
	b := broker.NewWithClient(client, &cfg.Broker)

	attempts := 0
	handlerMap := map[string]worker.TaskHandler{
		"flaky": func(ctx context.Context, tk *task.Task) (map[string]interface{}, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("boom")
			}
			return map[string]interface{}{"ok": true}, nil
		},
	}

	pool := worker.NewPool(&cfg.Worker, &cfg.Broker, b, handlerMap)

	tk, err := task.New("flaky", nil, 5, task.Options{Queue: "default", MaxRetries: 2})
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), tk))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pool.Start(ctx))
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = pool.Stop(stopCtx)
	}()

	require.Eventually(t, func() bool {
		got, err := b.GetTask(context.Background(), tk.ID)
		return err == nil && got.Status == task.StatusCompleted
	}, 3*time.Second, 20*time.Millisecond)

	final, err := b.GetTask(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, final.Status)
	assert.Equal(t, 1, final.Retries)
	assert.Equal(t, map[string]interface{}{"ok": true}, final.Result)
}

func TestWorkerPool_StartStop(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testConfig()
	b := broker.NewWithClient(client, &cfg.Broker)

	handlerMap := map[string]worker.TaskHandler{
		"test": func(ctx context.Context, tk *task.Task) (map[string]interface{}, error) {
			return map[string]interface{}{"result": "ok"}, nil
		},
	}

	pool := worker.NewPool(&cfg.Worker, &cfg.Broker, b, handlerMap)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pool.Start(ctx))
	assert.Equal(t, "test-worker", pool.ID())

	require.Eventually(t, func() bool {
		return pool.State() == worker.StateIdle
	}, time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	require.NoError(t, pool.Stop(stopCtx))
	assert.Equal(t, worker.StateStopped, pool.State())
}

func intPtr(n int) *int { return &n }
