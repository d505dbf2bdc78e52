package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/events"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/logger"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/observer"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
)

// TaskHandler handles task-related HTTP requests: submission, lookup, and
// cancellation. It is a thin adapter over the broker/observer — all queue
// and retry semantics live there, not here.
type TaskHandler struct {
	broker       *broker.Broker
	observer     *observer.Observer
	publisher    *events.RedisPubSub
	defaultQueue string
	maxRetries   int
}

// NewTaskHandler creates a new task handler. publisher may be nil, in
// which case task lifecycle events simply aren't broadcast to WebSocket
// subscribers.
func NewTaskHandler(b *broker.Broker, obs *observer.Observer, publisher *events.RedisPubSub, defaultQueue string, maxRetries int) *TaskHandler {
	return &TaskHandler{broker: b, observer: obs, publisher: publisher, defaultQueue: defaultQueue, maxRetries: maxRetries}
}

// CreateTaskRequest is the submission payload for POST /api/v1/tasks.
// Request validation beyond a non-empty name is this handler's boundary,
// not the queue engine's concern — the spec explicitly scopes schema
// validation out of the core.
type CreateTaskRequest struct {
	Name           string                 `json:"name"`
	Payload        map[string]interface{} `json:"payload"`
	Priority       int                    `json:"priority"`
	Queue          string                 `json:"queue,omitempty"`
	MaxRetries     *int                   `json:"max_retries,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "task name is required")
		return
	}

	priority := req.Priority
	if priority == 0 {
		priority = 5
	}

	maxRetries := h.maxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	queue := req.Queue
	if queue == "" {
		queue = h.defaultQueue
	}

	t, err := task.New(req.Name, req.Payload, priority, task.Options{
		Queue:          queue,
		MaxRetries:     maxRetries,
		TimeoutSeconds: req.TimeoutSeconds,
	})
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.broker.Enqueue(r.Context(), t); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID).Msg("failed to enqueue task")
		h.respondError(w, http.StatusInternalServerError, "failed to enqueue task")
		return
	}

	logger.Info().Str("task_id", t.ID).Str("name", t.Name).Int("priority", t.Priority).Msg("task created")
	h.publishTaskEvent(r.Context(), events.EventTaskSubmitted, t, nil)
	h.respondJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/tasks/{taskID}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	t, err := h.broker.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Str("task_id", taskID).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	h.respondJSON(w, http.StatusOK, t)
}

// Cancel handles DELETE /api/v1/tasks/{taskID}. Only a still-pending task
// can be cancelled; anything already dispatched must run to its natural
// conclusion (see the spec's open question on cancelling in-flight work).
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	t, err := h.broker.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Str("task_id", taskID).Msg("failed to get task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}

	cancelled, err := h.observer.CancelPending(r.Context(), t.Queue, taskID)
	if err != nil {
		logger.Error().Err(err).Str("task_id", taskID).Msg("failed to cancel task")
		h.respondError(w, http.StatusInternalServerError, "failed to cancel task")
		return
	}
	if !cancelled {
		h.respondError(w, http.StatusConflict, "task cannot be cancelled in current state")
		return
	}

	logger.Info().Str("task_id", taskID).Msg("task cancelled")
	h.publishTaskEvent(r.Context(), events.EventTaskCancelled, t, nil)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"task_id": taskID,
		"status":  "cancelled",
	})
}

// List handles GET /api/v1/tasks. Since the broker has no registry of
// queue names on its own, this reports pending tasks for the caller's
// default queue only — listing across every queue the deployment knows
// about is the admin surface's job (see AdminHandler.GetQueues).
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.observer.GetPendingTasks(r.Context(), h.defaultQueue, 100)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list pending tasks")
		h.respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queue":       h.defaultQueue,
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *TaskHandler) publishTaskEvent(ctx context.Context, eventType events.EventType, t *task.Task, extra map[string]interface{}) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishTaskEvent(ctx, eventType, t.ID, t.Name, fmt.Sprintf("%d", t.Priority), extra); err != nil {
		logger.Error().Err(err).Str("task_id", t.ID).Str("event", string(eventType)).Msg("failed to publish task event")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
