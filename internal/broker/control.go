package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
)

// Pause adds queue to the paused set. Dequeue does not itself consult this
// set — callers (the worker pool) check IsPaused before blocking so a
// paused queue's workers idle instead of holding a connection open on a
// BZPOPMIN that would never be asked to stop.
func (b *Broker) Pause(ctx context.Context, queue string) error {
	if err := b.client.SAdd(ctx, pausedQueuesKey, queue).Err(); err != nil {
		return fmt.Errorf("broker: pause %s: %w", queue, err)
	}
	return nil
}

// Resume removes queue from the paused set.
func (b *Broker) Resume(ctx context.Context, queue string) error {
	if err := b.client.SRem(ctx, pausedQueuesKey, queue).Err(); err != nil {
		return fmt.Errorf("broker: resume %s: %w", queue, err)
	}
	return nil
}

// IsPaused reports whether queue is currently paused.
func (b *Broker) IsPaused(ctx context.Context, queue string) (bool, error) {
	paused, err := b.client.SIsMember(ctx, pausedQueuesKey, queue).Result()
	if err != nil {
		return false, fmt.Errorf("broker: check paused %s: %w", queue, err)
	}
	return paused, nil
}

// ListPausedQueues returns every currently paused queue name.
func (b *Broker) ListPausedQueues(ctx context.Context) ([]string, error) {
	queues, err := b.client.SMembers(ctx, pausedQueuesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: list paused queues: %w", err)
	}
	return queues, nil
}

// ClearDeadLetter deletes every task record referenced by queue's dead
// letter set along with the set itself. It intentionally leaves the
// regular failed set alone: a task's dead-letter entry and its failed-set
// entry are tracked independently, and this only clears the former.
func (b *Broker) ClearDeadLetter(ctx context.Context, queue string) (int, error) {
	ids, err := b.client.SMembers(ctx, dlqKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: clear dead letter %s: list: %w", queue, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := b.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, taskKey(id))
	}
	pipe.Del(ctx, dlqKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("broker: clear dead letter %s: %w", queue, err)
	}
	return len(ids), nil
}

// RemoveFromDeadLetter removes a single id from queue's dead letter set,
// used when an operator retries one DLQ entry rather than clearing the
// whole set.
func (b *Broker) RemoveFromDeadLetter(ctx context.Context, queue, id string) error {
	if err := b.client.SRem(ctx, dlqKey(queue), id).Err(); err != nil {
		return fmt.Errorf("broker: remove %s from dead letter %s: %w", id, queue, err)
	}
	return nil
}

// GetDeadLetterTasks returns every task currently in queue's dead letter set.
func (b *Broker) GetDeadLetterTasks(ctx context.Context, queue string) ([]*task.Task, error) {
	ids, err := b.client.SMembers(ctx, dlqKey(queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: list dead letter %s: %w", queue, err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := b.GetTask(ctx, id)
		if errors.Is(err, task.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
