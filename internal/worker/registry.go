package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
)

// GetWorkerState fetches and decodes a single worker's published Info.
func GetWorkerState(ctx context.Context, b *broker.Broker, workerID string) (*Info, error) {
	data, err := b.GetWorkerState(ctx, workerID)
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("worker: decode state for %s: %w", workerID, err)
	}
	return &info, nil
}

// GetAllWorkers returns the Info of every worker currently in the active
// set, skipping any whose record has disappeared between the membership
// read and the fetch.
func GetAllWorkers(ctx context.Context, b *broker.Broker) ([]*Info, error) {
	ids, err := b.ListActiveWorkerIDs(ctx)
	if err != nil {
		return nil, err
	}

	workers := make([]*Info, 0, len(ids))
	for _, id := range ids {
		info, err := GetWorkerState(ctx, b, id)
		if err != nil {
			continue
		}
		workers = append(workers, info)
	}
	return workers, nil
}

// GetActiveWorkers returns workers that have heartbeat within timeout.
func GetActiveWorkers(ctx context.Context, b *broker.Broker, timeout time.Duration) ([]*Info, error) {
	all, err := GetAllWorkers(ctx, b)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	active := make([]*Info, 0, len(all))
	for _, w := range all {
		if now.Sub(w.LastHeartbeat) < timeout {
			active = append(active, w)
		}
	}
	return active, nil
}

// GetStaleWorkers returns workers that have NOT heartbeat within timeout —
// candidates for orphaned-task recovery and cleanup.
func GetStaleWorkers(ctx context.Context, b *broker.Broker, timeout time.Duration) ([]*Info, error) {
	all, err := GetAllWorkers(ctx, b)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stale := make([]*Info, 0, len(all))
	for _, w := range all {
		if now.Sub(w.LastHeartbeat) >= timeout {
			stale = append(stale, w)
		}
	}
	return stale, nil
}

// CleanupStaleWorkers removes every worker whose last heartbeat is older
// than timeout from the broker's active set and state store, and reports
// how many were removed.
func CleanupStaleWorkers(ctx context.Context, b *broker.Broker, timeout time.Duration) (int, error) {
	stale, err := GetStaleWorkers(ctx, b, timeout)
	if err != nil {
		return 0, err
	}

	for _, w := range stale {
		if err := b.DeregisterWorker(ctx, w.ID); err != nil {
			return 0, fmt.Errorf("worker: cleanup %s: %w", w.ID, err)
		}
	}
	return len(stale), nil
}
