// Package broker is the single point of contact with Redis: every sorted
// set, set, and task record key the rest of the system relies on is read or
// written here, and nowhere else.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/config"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/metrics"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
)

// ErrQueuePaused reports that a queue is paused. Dequeue does not consult
// the paused set and never returns it; the worker pool checks IsPaused
// before dequeuing instead.
var ErrQueuePaused = errors.New("broker: queue is paused")

// Broker is a Redis-backed implementation of the priority task queue
// described by the key layout in keys.go.
type Broker struct {
	client           *redis.Client
	defaultQueue     string
	taskRetentionTTL time.Duration
}

// New dials Redis with connection pooling and verifies reachability before
// returning, mirroring how a production queue client is expected to fail
// fast at startup rather than lazily on first use.
func New(redisCfg *config.RedisConfig, brokerCfg *config.BrokerConfig) (*Broker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         redisCfg.Addr,
		Password:     redisCfg.Password,
		DB:           redisCfg.DB,
		PoolSize:     redisCfg.PoolSize,
		MinIdleConns: redisCfg.MinIdleConns,
		MaxRetries:   redisCfg.MaxRetries,
		DialTimeout:  redisCfg.DialTimeout,
		ReadTimeout:  redisCfg.ReadTimeout,
		WriteTimeout: redisCfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("broker: connect to redis: %w", err)
	}

	return newWithClient(client, brokerCfg), nil
}

// NewWithClient wraps an already-constructed redis.Client, the seam tests
// use to point the broker at a miniredis instance.
func NewWithClient(client *redis.Client, brokerCfg *config.BrokerConfig) *Broker {
	return newWithClient(client, brokerCfg)
}

func newWithClient(client *redis.Client, brokerCfg *config.BrokerConfig) *Broker {
	return &Broker{
		client:           client,
		defaultQueue:     brokerCfg.DefaultQueue,
		taskRetentionTTL: brokerCfg.TaskRetentionTTL,
	}
}

// Close releases the underlying connection pool.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Client exposes the underlying client for components (metrics, health
// checks) that need direct Redis access beyond the broker's own surface.
func (b *Broker) Client() *redis.Client {
	return b.client
}

// HealthCheck reports whether Redis is reachable.
func (b *Broker) HealthCheck(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("broker: health check: %w", err)
	}
	return nil
}

// resolveQueue returns t's queue, defaulting it in place when unset.
func (b *Broker) resolveQueue(t *task.Task) string {
	if t.Queue == "" {
		t.Queue = b.defaultQueue
	}
	return t.Queue
}

// Enqueue stores the task record and adds it to its queue's pending sorted
// set, scored so that higher-priority tasks sort first.
func (b *Broker) Enqueue(ctx context.Context, t *task.Task) error {
	queue := b.resolveQueue(t)

	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("broker: marshal task: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, taskKey(t.ID), data, 0)
	pipe.ZAdd(ctx, pendingKey(queue), redis.Z{Score: float64(-t.Priority), Member: t.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: enqueue %s: %w", t.ID, err)
	}
	metrics.RecordTaskEnqueued(t.Name, queue)
	return nil
}

// Dequeue blocks up to timeout waiting for the highest-priority task across
// any of queues, moves it into its queue's processing set, and marks it
// processing. When more than one queue is given, whichever queue produces
// a ready task first wins; priority ordering is only guaranteed within a
// single queue's pending set, never across queues.
//
// A nil, nil return means the wait elapsed with nothing available; callers
// should loop rather than treat it as an error.
func (b *Broker) Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (*task.Task, error) {
	if len(queues) == 0 {
		return nil, fmt.Errorf("broker: dequeue requires at least one queue")
	}

	keys := make([]string, len(queues))
	keyToQueue := make(map[string]string, len(queues))
	for i, q := range queues {
		k := pendingKey(q)
		keys[i] = k
		keyToQueue[k] = q
	}

	result, err := b.client.BZPopMin(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("broker: dequeue from %v: %w", queues, err)
	}

	queue := keyToQueue[result.Key]
	id, ok := result.Member.(string)
	if !ok {
		return nil, fmt.Errorf("broker: dequeue from %s: unexpected member type %T", queue, result.Member)
	}

	if err := b.client.SAdd(ctx, processingKey(queue), id).Err(); err != nil {
		return nil, fmt.Errorf("broker: mark %s processing: %w", id, err)
	}

	t, err := b.GetTask(ctx, id)
	if err != nil {
		// The task record is gone (e.g. expired via retention TTL); drop
		// the dangling processing-set membership and let the caller retry.
		b.client.SRem(ctx, processingKey(queue), id)
		if errors.Is(err, task.ErrTaskNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := t.MarkProcessing(); err != nil {
		return nil, fmt.Errorf("broker: %s already %s, not pending: %w", id, t.Status, err)
	}
	t.Queue = queue

	if err := b.persist(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask loads a task record by ID.
func (b *Broker) GetTask(ctx context.Context, id string) (*task.Task, error) {
	data, err := b.client.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("broker: get task %s: %w", id, err)
	}

	t, err := task.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("broker: unmarshal task %s: %w", id, err)
	}
	return t, nil
}

// persist writes the task record without touching set membership.
func (b *Broker) persist(ctx context.Context, t *task.Task) error {
	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("broker: marshal task %s: %w", t.ID, err)
	}

	ttl := time.Duration(0)
	if isTerminal(t.Status) {
		ttl = b.taskRetentionTTL
	}
	if err := b.client.Set(ctx, taskKey(t.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("broker: persist task %s: %w", t.ID, err)
	}
	return nil
}

func isTerminal(s task.Status) bool {
	return s == task.StatusCompleted || s == task.StatusFailed
}

// UpdateTask persists t and reconciles queue set membership to match its
// current status. Membership is reconciled from the new status alone,
// without reading the prior state: the task is removed from the sets its
// usual predecessor states occupy and added to the one its new status
// implies (pending leaves processing and failed; processing leaves
// pending; completed leaves processing and failed; failed leaves
// processing). Completed and dead letter membership is never cleared here.
func (b *Broker) UpdateTask(ctx context.Context, t *task.Task) error {
	queue := b.resolveQueue(t)

	if err := b.persist(ctx, t); err != nil {
		return err
	}

	pipe := b.client.TxPipeline()
	switch t.Status {
	case task.StatusPending:
		pipe.SRem(ctx, processingKey(queue), t.ID)
		pipe.SRem(ctx, failedKey(queue), t.ID)
		pipe.ZAdd(ctx, pendingKey(queue), redis.Z{Score: float64(-t.Priority), Member: t.ID})
	case task.StatusProcessing:
		pipe.ZRem(ctx, pendingKey(queue), t.ID)
		pipe.SAdd(ctx, processingKey(queue), t.ID)
	case task.StatusCompleted:
		pipe.SRem(ctx, processingKey(queue), t.ID)
		pipe.SRem(ctx, failedKey(queue), t.ID)
		pipe.SAdd(ctx, completedKey(queue), t.ID)
	case task.StatusFailed:
		pipe.SRem(ctx, processingKey(queue), t.ID)
		pipe.SAdd(ctx, failedKey(queue), t.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: reconcile membership for %s: %w", t.ID, err)
	}
	return nil
}

// AddToDeadLetter adds id to its queue's DLQ set. It does not remove id from
// the regular failed set: a task that has exhausted its retries remains
// visible in both places, which is the intended discrepancy operators are
// expected to know about rather than a bug to be reconciled away.
func (b *Broker) AddToDeadLetter(ctx context.Context, queue, id string) error {
	if err := b.client.SAdd(ctx, dlqKey(queue), id).Err(); err != nil {
		return fmt.Errorf("broker: add %s to dead letter: %w", id, err)
	}
	return nil
}

// RetryTask prepares t for another attempt and re-enqueues it if retries
// remain. It reports false, nil (not an error) when the retry budget is
// already exhausted, leaving the caller to route to the dead letter queue.
func (b *Broker) RetryTask(ctx context.Context, t *task.Task) (bool, error) {
	if !t.CanRetry() {
		return false, nil
	}
	if err := t.PrepareRetry(); err != nil {
		return false, fmt.Errorf("broker: prepare retry for %s: %w", t.ID, err)
	}
	if err := b.UpdateTask(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

// QueueStats summarizes the size of every set that makes up a queue.
type QueueStats struct {
	Queue      string `json:"queue"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	DeadLetter int64  `json:"dead_letter"`
	Paused     bool   `json:"paused"`
}

// Total returns the count of tasks the queue is currently tracking outside
// the dead letter set (which is a subset of Failed, not an addition to it).
func (s QueueStats) Total() int64 {
	return s.Pending + s.Processing + s.Completed + s.Failed
}

// GetQueueStats reports the current size of every set backing queue.
func (b *Broker) GetQueueStats(ctx context.Context, queue string) (*QueueStats, error) {
	pipe := b.client.Pipeline()
	pending := pipe.ZCard(ctx, pendingKey(queue))
	processing := pipe.SCard(ctx, processingKey(queue))
	completed := pipe.SCard(ctx, completedKey(queue))
	failed := pipe.SCard(ctx, failedKey(queue))
	dlq := pipe.SCard(ctx, dlqKey(queue))
	paused := pipe.SIsMember(ctx, pausedQueuesKey, queue)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("broker: stats for %s: %w", queue, err)
	}

	stats := &QueueStats{
		Queue:      queue,
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Completed:  completed.Val(),
		Failed:     failed.Val(),
		DeadLetter: dlq.Val(),
		Paused:     paused.Val(),
	}

	metrics.UpdateQueueDepth(queue, float64(stats.Pending))
	metrics.SetDLQSize(queue, float64(stats.DeadLetter))
	metrics.SetQueuePaused(queue, stats.Paused)

	return stats, nil
}

// GetPendingTasks returns up to limit pending tasks for queue in priority
// order (highest priority first). limit <= 0 returns the whole set.
func (b *Broker) GetPendingTasks(ctx context.Context, queue string, limit int) ([]*task.Task, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := b.client.ZRange(ctx, pendingKey(queue), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: list pending for %s: %w", queue, err)
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

// ClearQueue deletes every task record referenced by queue's sets and the
// sets themselves. Completed tasks are only removed when includeCompleted
// is set, so an operator can wipe a backlog without losing history.
func (b *Broker) ClearQueue(ctx context.Context, queue string, includeCompleted bool) error {
	setKeys := []string{processingKey(queue), failedKey(queue), dlqKey(queue)}
	if includeCompleted {
		setKeys = append(setKeys, completedKey(queue))
	}

	ids := make(map[string]struct{})

	pendingIDs, err := b.client.ZRange(ctx, pendingKey(queue), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("broker: clear %s: list pending: %w", queue, err)
	}
	for _, id := range pendingIDs {
		ids[id] = struct{}{}
	}

	for _, key := range setKeys {
		members, err := b.client.SMembers(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("broker: clear %s: list %s: %w", queue, key, err)
		}
		for _, id := range members {
			ids[id] = struct{}{}
		}
	}

	pipe := b.client.TxPipeline()
	for id := range ids {
		pipe.Del(ctx, taskKey(id))
	}
	pipe.Del(ctx, pendingKey(queue))
	for _, key := range setKeys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: clear %s: %w", queue, err)
	}
	return nil
}

// CancelPending removes id from queue's pending set if, and only if, it is
// still pending. The task record itself is left untouched: nothing in the
// data model has a cancelled status, so the record simply becomes
// unreachable from any queue view once this returns true.
func (b *Broker) CancelPending(ctx context.Context, queue, id string) (bool, error) {
	t, err := b.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	if t.Status != task.StatusPending {
		return false, nil
	}

	removed, err := b.client.ZRem(ctx, pendingKey(queue), id).Result()
	if err != nil {
		return false, fmt.Errorf("broker: cancel %s: %w", id, err)
	}
	return removed > 0, nil
}

// RegisterWorker writes a worker's state under a TTL-less string key and adds
// it to the active set; the heartbeat loop is responsible for refreshing it.
func (b *Broker) RegisterWorker(ctx context.Context, workerID string, state []byte) error {
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, workerKey(workerID), state, 0)
	pipe.SAdd(ctx, activeWorkersKey, workerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: register worker %s: %w", workerID, err)
	}
	return nil
}

// DeregisterWorker removes a worker's state and its active-set membership.
func (b *Broker) DeregisterWorker(ctx context.Context, workerID string) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, workerKey(workerID))
	pipe.SRem(ctx, activeWorkersKey, workerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: deregister worker %s: %w", workerID, err)
	}
	return nil
}

// GetWorkerState fetches a worker's last-reported state.
func (b *Broker) GetWorkerState(ctx context.Context, workerID string) ([]byte, error) {
	data, err := b.client.Get(ctx, workerKey(workerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("broker: get worker %s: %w", workerID, err)
	}
	return data, nil
}

// ListActiveWorkerIDs returns every worker ID in the active set.
func (b *Broker) ListActiveWorkerIDs(ctx context.Context) ([]string, error) {
	ids, err := b.client.SMembers(ctx, activeWorkersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: list active workers: %w", err)
	}
	return ids, nil
}
