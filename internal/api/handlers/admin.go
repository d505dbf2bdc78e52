package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/logger"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/observer"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
)

// AdminHandler handles operator-facing HTTP requests: worker visibility,
// queue control, and dead-letter management. Every write it exposes maps
// directly onto an Observer method — it never touches the broker itself.
type AdminHandler struct {
	observer *observer.Observer
	queues   []string
}

// NewAdminHandler creates a new admin handler. queues is the set of queue
// names this deployment knows about; the broker has no registry of its
// own, so the admin surface needs to be told which ones to report on.
func NewAdminHandler(obs *observer.Observer, queues []string) *AdminHandler {
	return &AdminHandler{observer: obs, queues: queues}
}

// HealthCheck handles GET /admin/health.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.observer.HealthCheck(r.Context()); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ListWorkers handles GET /admin/workers.
func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.observer.ListWorkers(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list workers")
		h.respondError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// GetWorker handles GET /admin/workers/{workerID}.
func (h *AdminHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker ID is required")
		return
	}

	info, err := h.observer.GetWorker(r.Context(), workerID)
	if err != nil {
		logger.Error().Err(err).Str("worker_id", workerID).Msg("failed to get worker")
		h.respondError(w, http.StatusNotFound, "worker not found")
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

// CleanupStaleWorkers handles POST /admin/workers/cleanup, deregistering
// every worker that has stopped heartbeating.
func (h *AdminHandler) CleanupStaleWorkers(w http.ResponseWriter, r *http.Request) {
	n, err := h.observer.CleanupStaleWorkers(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to clean up stale workers")
		h.respondError(w, http.StatusInternalServerError, "failed to clean up stale workers")
		return
	}

	logger.Info().Int("removed", n).Msg("stale workers cleaned up")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"removed": n})
}

// GetQueues handles GET /admin/queues, reporting stats for every queue
// this deployment is configured to know about.
func (h *AdminHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.observer.ListQueues(r.Context(), h.queues)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list queues")
		h.respondError(w, http.StatusInternalServerError, "failed to list queues")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"queues": summaries})
}

// PauseQueue handles POST /admin/queues/{queue}/pause.
func (h *AdminHandler) PauseQueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if err := h.observer.Pause(r.Context(), queue); err != nil {
		logger.Error().Err(err).Str("queue", queue).Msg("failed to pause queue")
		h.respondError(w, http.StatusInternalServerError, "failed to pause queue")
		return
	}
	logger.Info().Str("queue", queue).Msg("queue paused")
	h.respondJSON(w, http.StatusOK, map[string]string{"queue": queue, "status": "paused"})
}

// ResumeQueue handles POST /admin/queues/{queue}/resume.
func (h *AdminHandler) ResumeQueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if err := h.observer.Resume(r.Context(), queue); err != nil {
		logger.Error().Err(err).Str("queue", queue).Msg("failed to resume queue")
		h.respondError(w, http.StatusInternalServerError, "failed to resume queue")
		return
	}
	logger.Info().Str("queue", queue).Msg("queue resumed")
	h.respondJSON(w, http.StatusOK, map[string]string{"queue": queue, "status": "resumed"})
}

// PurgeQueue handles DELETE /admin/queues/{queue}. A query parameter
// ?completed=true also removes the completed set; otherwise completed
// tasks are left alone so recent history survives a purge of the working
// sets.
func (h *AdminHandler) PurgeQueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	includeCompleted := r.URL.Query().Get("completed") == "true"

	if err := h.observer.ClearQueue(r.Context(), queue, includeCompleted); err != nil {
		logger.Error().Err(err).Str("queue", queue).Msg("failed to purge queue")
		h.respondError(w, http.StatusInternalServerError, "failed to purge queue")
		return
	}
	logger.Info().Str("queue", queue).Msg("queue purged")
	h.respondJSON(w, http.StatusOK, map[string]string{"queue": queue, "status": "purged"})
}

// RetryTask handles POST /admin/tasks/{taskID}/retry, forcing a retry of
// a failed task outside the worker's normal retry budget.
func (h *AdminHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	if err := h.observer.RetryFailed(r.Context(), taskID); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			h.respondError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error().Err(err).Str("task_id", taskID).Msg("failed to retry task")
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}

	logger.Info().Str("task_id", taskID).Msg("task retry forced")
	h.respondJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": "pending"})
}

// ListDLQ handles GET /admin/dlq?queue=name.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	queue := r.URL.Query().Get("queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue query parameter is required")
		return
	}

	tasks, err := h.observer.ListDeadLetter(r.Context(), queue)
	if err != nil {
		logger.Error().Err(err).Str("queue", queue).Msg("failed to list dead letter tasks")
		h.respondError(w, http.StatusInternalServerError, "failed to list dead letter tasks")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queue": queue,
		"tasks": tasks,
		"count": len(tasks),
	})
}

// RetryDLQRequest is the payload for POST /admin/dlq/retry.
type RetryDLQRequest struct {
	TaskID string `json:"task_id"`
}

// RetryDLQ handles POST /admin/dlq/retry, retrying a single dead-lettered
// task by ID.
func (h *AdminHandler) RetryDLQ(w http.ResponseWriter, r *http.Request) {
	var req RetryDLQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		h.respondError(w, http.StatusBadRequest, "task_id is required")
		return
	}

	if err := h.observer.RetryFailed(r.Context(), req.TaskID); err != nil {
		logger.Error().Err(err).Str("task_id", req.TaskID).Msg("failed to retry dead letter task")
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}

	logger.Info().Str("task_id", req.TaskID).Msg("dead letter task retried")
	h.respondJSON(w, http.StatusOK, map[string]string{"task_id": req.TaskID, "status": "pending"})
}

// ClearDLQ handles DELETE /admin/dlq?queue=name.
func (h *AdminHandler) ClearDLQ(w http.ResponseWriter, r *http.Request) {
	queue := r.URL.Query().Get("queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue query parameter is required")
		return
	}

	n, err := h.observer.ClearDeadLetter(r.Context(), queue)
	if err != nil {
		logger.Error().Err(err).Str("queue", queue).Msg("failed to clear dead letter queue")
		h.respondError(w, http.StatusInternalServerError, "failed to clear dead letter queue")
		return
	}

	logger.Info().Str("queue", queue).Int("cleared", n).Msg("dead letter queue cleared")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"queue": queue, "cleared": n})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
