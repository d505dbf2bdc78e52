package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/config"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
)

func newTestPoolBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return broker.NewWithClient(client, &config.BrokerConfig{DefaultQueue: "default", StaleTimeout: time.Minute, RecoveryInterval: time.Hour})
}

func testWorkerConfig() *config.WorkerConfig {
	return &config.WorkerConfig{
		ID:                "test-worker",
		Queues:            []string{"default"},
		Concurrency:       2,
		TaskTimeout:       time.Second,
		HeartbeatInterval: time.Hour, // quiet during tests
		DequeueTimeout:    50 * time.Millisecond,
		ShutdownTimeout:   2 * time.Second,
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPool_ExecutesEnqueuedTask(t *testing.T) {
	b := newTestPoolBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan *task.Task, 1)
	handlers := map[string]TaskHandler{
		"greet": func(ctx context.Context, t *task.Task) (map[string]interface{}, error) {
			handled <- t
			return map[string]interface{}{"greeted": true}, nil
		},
	}

	p := NewPool(testWorkerConfig(), &config.BrokerConfig{StaleTimeout: time.Minute, RecoveryInterval: time.Hour}, b, handlers)
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())

	tk, err := task.New("greet", nil, 5, task.Options{Queue: "default"})
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), tk))

	select {
	case got := <-handled:
		assert.Equal(t, tk.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not handled in time")
	}

	waitForCondition(t, time.Second, func() bool {
		stored, err := b.GetTask(context.Background(), tk.ID)
		return err == nil && stored.Status == task.StatusCompleted
	})
}

func TestPool_RetriesOnFailureThenDeadLetters(t *testing.T) {
	b := newTestPoolBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	handlers := map[string]TaskHandler{
		"flaky": func(ctx context.Context, t *task.Task) (map[string]interface{}, error) {
			attempts++
			return nil, errors.New("always fails")
		},
	}

	cfg := testWorkerConfig()
	cfg.Concurrency = 1
	p := NewPool(cfg, &config.BrokerConfig{StaleTimeout: time.Minute, RecoveryInterval: time.Hour}, b, handlers)
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())

	tk, err := task.New("flaky", nil, 5, task.Options{Queue: "default", MaxRetries: 1})
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), tk))

	waitForCondition(t, 3*time.Second, func() bool {
		stats, err := b.GetQueueStats(context.Background(), "default")
		return err == nil && stats.DeadLetter == 1
	})

	stored, err := b.GetTask(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Retries)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestPool_PausedQueueIsNotDrained(t *testing.T) {
	b := newTestPoolBroker(t)
	require.NoError(t, b.Pause(context.Background(), "default"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := false
	handlers := map[string]TaskHandler{
		"noop": func(ctx context.Context, t *task.Task) (map[string]interface{}, error) {
			called = true
			return nil, nil
		},
	}

	p := NewPool(testWorkerConfig(), &config.BrokerConfig{StaleTimeout: time.Minute, RecoveryInterval: time.Hour}, b, handlers)
	require.NoError(t, p.Start(ctx))
	defer p.Stop(context.Background())

	tk, err := task.New("noop", nil, 5, task.Options{Queue: "default"})
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), tk))

	time.Sleep(300 * time.Millisecond)
	assert.False(t, called)

	require.NoError(t, b.Resume(context.Background(), "default"))
	waitForCondition(t, 2*time.Second, func() bool { return called })
}

func TestPool_StateTransitions(t *testing.T) {
	b := newTestPoolBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPool(testWorkerConfig(), &config.BrokerConfig{StaleTimeout: time.Minute, RecoveryInterval: time.Hour}, b, nil)
	assert.Equal(t, StateStarting, p.State())

	require.NoError(t, p.Start(ctx))
	waitForCondition(t, time.Second, func() bool { return p.State() == StateIdle })

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, StateStopped, p.State())
}
