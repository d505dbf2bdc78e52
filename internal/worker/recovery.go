package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/logger"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/metrics"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
)

// RecoverOrphanedTasks finds workers that have gone stale (no heartbeat
// within staleTimeout), requeues whichever of them is still reporting a
// current task that is still sitting in processing, and then deregisters
// every stale worker it examined — a single pass folds task recovery and
// worker cleanup together so that a stale worker is never left registered
// once its in-flight task has been handed back to the queue. It returns
// how many tasks were recovered.
func RecoverOrphanedTasks(ctx context.Context, b *broker.Broker, staleTimeout time.Duration) (int, error) {
	staleWorkers, err := GetStaleWorkers(ctx, b, staleTimeout)
	if err != nil {
		return 0, err
	}

	recovered := 0
	log := logger.WithComponent("recovery")

	for _, w := range staleWorkers {
		if w.CurrentTaskID != "" {
			if recoverWorkerTask(ctx, b, log, w) {
				recovered++
			}
		}

		if err := b.DeregisterWorker(ctx, w.ID); err != nil {
			log.Error().Err(err).Str("worker_id", w.ID).Msg("failed to deregister stale worker")
		}
	}

	if recovered > 0 {
		metrics.RecordOrphanRecovery(recovered)
	}
	return recovered, nil
}

// recoverWorkerTask rewrites w's current task back to pending if it is
// still sitting in processing, reporting whether it did so.
func recoverWorkerTask(ctx context.Context, b *broker.Broker, log *zerolog.Logger, w *Info) bool {
	t, err := b.GetTask(ctx, w.CurrentTaskID)
	if errors.Is(err, task.ErrTaskNotFound) {
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("task_id", w.CurrentTaskID).Str("worker_id", w.ID).Msg("failed to load orphaned task")
		return false
	}

	if t.Status != task.StatusProcessing {
		return false
	}

	t.Status = task.StatusPending
	t.StartedAt = nil

	if err := b.UpdateTask(ctx, t); err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Str("worker_id", w.ID).Msg("failed to recover orphaned task")
		return false
	}

	log.Info().Str("task_id", t.ID).Str("worker_id", w.ID).Msg("recovered orphaned task")
	return true
}

// RecoveryLoop periodically runs RecoverOrphanedTasks until ctx is done or
// stopCh is closed.
func RecoveryLoop(ctx context.Context, b *broker.Broker, interval, staleTimeout time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logger.WithComponent("recovery")
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			active, errActive := GetActiveWorkers(ctx, b, staleTimeout)
			stale, errStale := GetStaleWorkers(ctx, b, staleTimeout)
			if errActive == nil && errStale == nil {
				metrics.SetWorkerCounts(len(active), len(stale))
			}

			n, err := RecoverOrphanedTasks(ctx, b, staleTimeout)
			if err != nil {
				log.Error().Err(err).Msg("recovery pass failed")
				continue
			}
			if n > 0 {
				log.Info().Int("recovered", n).Msg("recovery pass complete")
			}
		}
	}
}
