package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/config"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/observer"
)

func newTestAdminHandler(t *testing.T) *AdminHandler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := broker.NewWithClient(client, &config.BrokerConfig{DefaultQueue: "default"})
	obs := observer.New(b, 30*time.Second, 60*time.Second)
	return NewAdminHandler(obs, []string{"default"})
}

func TestAdminHandler_respondJSON(t *testing.T) {
	h := &AdminHandler{}

	w := httptest.NewRecorder()
	data := map[string]string{"status": "ok"}

	h.respondJSON(w, http.StatusOK, data)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

func TestAdminHandler_respondError(t *testing.T) {
	h := &AdminHandler{}

	w := httptest.NewRecorder()
	h.respondError(w, http.StatusNotFound, "worker not found")

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "Not Found", response["error"])
	assert.Equal(t, "worker not found", response["message"])
}

func TestAdminHandler_HealthCheck(t *testing.T) {
	h := newTestAdminHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()

	h.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandler_GetWorker_MissingID(t *testing.T) {
	h := &AdminHandler{}

	req := httptest.NewRequest(http.MethodGet, "/admin/workers/", nil)
	w := httptest.NewRecorder()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("workerID", "")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	h.GetWorker(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "worker ID is required", response["message"])
}

func TestAdminHandler_GetWorker_NotFound(t *testing.T) {
	h := newTestAdminHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/workers/missing", nil)
	w := httptest.NewRecorder()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("workerID", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	h.GetWorker(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_RetryTask_MissingID(t *testing.T) {
	h := &AdminHandler{}

	req := httptest.NewRequest(http.MethodPost, "/admin/tasks//retry", nil)
	w := httptest.NewRecorder()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("taskID", "")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	h.RetryTask(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "task ID is required", response["message"])
}

func TestAdminHandler_RetryTask_NotFound(t *testing.T) {
	h := newTestAdminHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/tasks/missing/retry", nil)
	w := httptest.NewRecorder()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("taskID", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	h.RetryTask(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_PauseResumeQueue(t *testing.T) {
	h := newTestAdminHandler(t)

	pauseReq := httptest.NewRequest(http.MethodPost, "/admin/queues/default/pause", nil)
	pauseW := httptest.NewRecorder()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("queue", "default")
	pauseReq = pauseReq.WithContext(context.WithValue(pauseReq.Context(), chi.RouteCtxKey, rctx))

	h.PauseQueue(pauseW, pauseReq)
	assert.Equal(t, http.StatusOK, pauseW.Code)

	resumeReq := httptest.NewRequest(http.MethodPost, "/admin/queues/default/resume", nil)
	resumeW := httptest.NewRecorder()
	rctx2 := chi.NewRouteContext()
	rctx2.URLParams.Add("queue", "default")
	resumeReq = resumeReq.WithContext(context.WithValue(resumeReq.Context(), chi.RouteCtxKey, rctx2))

	h.ResumeQueue(resumeW, resumeReq)
	assert.Equal(t, http.StatusOK, resumeW.Code)
}

func TestAdminHandler_CleanupStaleWorkers(t *testing.T) {
	h := newTestAdminHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/workers/cleanup", nil)
	w := httptest.NewRecorder()

	h.CleanupStaleWorkers(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Contains(t, resp, "removed")
}

func TestAdminHandler_ListDLQ_MissingQueue(t *testing.T) {
	h := &AdminHandler{}

	req := httptest.NewRequest(http.MethodGet, "/admin/dlq", nil)
	w := httptest.NewRecorder()

	h.ListDLQ(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryDLQRequest_Struct(t *testing.T) {
	req := RetryDLQRequest{
		TaskID: "task-123",
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded RetryDLQRequest
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, req.TaskID, decoded.TaskID)
}
