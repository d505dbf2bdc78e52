// Package observer is the read-only-plus-control façade the HTTP/WS admin
// surface and the CLI client talk to, so neither has to know the broker's
// or worker pool's internals directly.
package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/worker"
)

// Observer exposes queue and worker state without giving callers direct
// access to the broker's write surface beyond the handful of operator
// actions (pause/resume/retry/cancel/clear) it explicitly allows.
type Observer struct {
	broker       *broker.Broker
	activeTimeout time.Duration
	staleTimeout  time.Duration
}

// New creates an Observer backed by b. activeTimeout and staleTimeout are
// the same thresholds the worker pool's own recovery loop uses, so the
// admin view and the recovery decision always agree on who counts as alive.
func New(b *broker.Broker, activeTimeout, staleTimeout time.Duration) *Observer {
	return &Observer{broker: b, activeTimeout: activeTimeout, staleTimeout: staleTimeout}
}

// QueueSummary describes one queue for a listing view.
type QueueSummary struct {
	Name   string            `json:"name"`
	Stats  *broker.QueueStats `json:"stats"`
}

// ListQueues enumerates every name that appears in names and returns its
// current stats. The broker has no registry of queue names on its own —
// callers (the admin handler, backed by configuration or a known set of
// queues) supply which ones to report on.
func (o *Observer) ListQueues(ctx context.Context, names []string) ([]QueueSummary, error) {
	summaries := make([]QueueSummary, 0, len(names))
	for _, name := range names {
		stats, err := o.broker.GetQueueStats(ctx, name)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, QueueSummary{Name: name, Stats: stats})
	}
	return summaries, nil
}

// GetQueueStats reports a single queue's current stats.
func (o *Observer) GetQueueStats(ctx context.Context, queue string) (*broker.QueueStats, error) {
	return o.broker.GetQueueStats(ctx, queue)
}

// GetPendingTasks lists up to limit pending tasks for queue, highest
// priority first.
func (o *Observer) GetPendingTasks(ctx context.Context, queue string, limit int) ([]*task.Task, error) {
	return o.broker.GetPendingTasks(ctx, queue, limit)
}

// Pause stops queue from being drained by any worker.
func (o *Observer) Pause(ctx context.Context, queue string) error {
	return o.broker.Pause(ctx, queue)
}

// Resume allows queue to be drained again.
func (o *Observer) Resume(ctx context.Context, queue string) error {
	return o.broker.Resume(ctx, queue)
}

// IsPaused reports whether queue is currently paused.
func (o *Observer) IsPaused(ctx context.Context, queue string) (bool, error) {
	return o.broker.IsPaused(ctx, queue)
}

// ListDeadLetter returns every task in queue's dead letter set.
func (o *Observer) ListDeadLetter(ctx context.Context, queue string) ([]*task.Task, error) {
	return o.broker.GetDeadLetterTasks(ctx, queue)
}

// ClearDeadLetter removes every task in queue's dead letter set and
// reports how many were removed.
func (o *Observer) ClearDeadLetter(ctx context.Context, queue string) (int, error) {
	return o.broker.ClearDeadLetter(ctx, queue)
}

// ClearQueue wipes queue's pending/processing/failed/dlq sets, and
// completed too when includeCompleted is set.
func (o *Observer) ClearQueue(ctx context.Context, queue string, includeCompleted bool) error {
	return o.broker.ClearQueue(ctx, queue, includeCompleted)
}

// GetTask loads a single task record by ID.
func (o *Observer) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return o.broker.GetTask(ctx, id)
}

// CancelPending removes a still-pending task from its queue. It reports
// false when the task has already left the pending state.
func (o *Observer) CancelPending(ctx context.Context, queue, id string) (bool, error) {
	return o.broker.CancelPending(ctx, queue, id)
}

// RetryFailed forces a retry of a failed task regardless of its remaining
// retry budget, the operator override to the worker's automatic retry
// path. It reports an error if the task is not currently failed. A task
// that exhausted its retries normally also sits in its queue's dead
// letter set; this clears that membership too, since the task is no
// longer dead once it has been handed a fresh attempt.
func (o *Observer) RetryFailed(ctx context.Context, id string) error {
	t, err := o.broker.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusFailed {
		return fmt.Errorf("observer: task %s is not failed (status=%s)", id, t.Status)
	}

	t.Retries = 0
	t.Status = task.StatusPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Error = ""
	if err := o.broker.UpdateTask(ctx, t); err != nil {
		return err
	}
	return o.broker.RemoveFromDeadLetter(ctx, t.Queue, id)
}

// ListWorkers returns the liveness info for every registered worker.
func (o *Observer) ListWorkers(ctx context.Context) ([]*worker.Info, error) {
	return worker.GetAllWorkers(ctx, o.broker)
}

// ListActiveWorkers returns workers that have heartbeat recently enough
// to be considered alive.
func (o *Observer) ListActiveWorkers(ctx context.Context) ([]*worker.Info, error) {
	return worker.GetActiveWorkers(ctx, o.broker, o.activeTimeout)
}

// GetWorker fetches a single worker's published liveness info.
func (o *Observer) GetWorker(ctx context.Context, workerID string) (*worker.Info, error) {
	return worker.GetWorkerState(ctx, o.broker, workerID)
}

// HealthCheck reports whether the backing broker is reachable.
func (o *Observer) HealthCheck(ctx context.Context) error {
	return o.broker.HealthCheck(ctx)
}

// CleanupStaleWorkers deregisters every worker whose last heartbeat is
// older than the observer's stale timeout, reporting how many were
// removed. Unlike the worker pool's own RecoverOrphanedTasks loop, this
// only touches worker registration — it never reassigns a stale worker's
// in-flight task — so an operator can sweep dead worker entries without
// side effects on queue state.
func (o *Observer) CleanupStaleWorkers(ctx context.Context) (int, error) {
	return worker.CleanupStaleWorkers(ctx, o.broker, o.staleTimeout)
}
