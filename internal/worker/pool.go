// Package worker runs the goroutine pool that pulls tasks from the broker,
// dispatches them to registered handlers, and reports retry/dead-letter
// outcomes back.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/config"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/events"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/logger"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/metrics"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
)

// State is a worker pool's position in its lifecycle:
// starting -> idle <-> busy, and idle/busy -> stopping -> stopped.
type State string

const (
	StateStarting State = "starting"
	StateIdle     State = "idle"
	StateBusy     State = "busy"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Pool runs Concurrency goroutines pulling from a shared set of queues.
type Pool struct {
	id     string
	queues []string

	broker    *broker.Broker
	executor  *Executor
	heartbeat *Heartbeat

	concurrency      int
	dequeueTimeout   time.Duration
	defaultTimeout   time.Duration
	shutdownTimeout  time.Duration
	recoveryInterval time.Duration
	staleTimeout     time.Duration

	state  atomic.Value // State
	active int32        // currently executing handlers
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewPool creates a worker pool over workerCfg's queues, using b to pull
// and report on tasks and handlers to execute them. brokerCfg supplies the
// staleness threshold and recovery cadence for the orphan recovery loop.
func NewPool(workerCfg *config.WorkerConfig, brokerCfg *config.BrokerConfig, b *broker.Broker, handlers map[string]TaskHandler) *Pool {
	id := workerCfg.ID
	if id == "" {
		id = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	queues := workerCfg.Queues
	if len(queues) == 0 {
		queues = []string{"default"}
	}

	p := &Pool{
		id:               id,
		queues:           queues,
		broker:           b,
		executor:         NewExecutor(handlers),
		concurrency:      workerCfg.Concurrency,
		dequeueTimeout:   workerCfg.DequeueTimeout,
		defaultTimeout:   workerCfg.TaskTimeout,
		shutdownTimeout:  workerCfg.ShutdownTimeout,
		recoveryInterval: brokerCfg.RecoveryInterval,
		staleTimeout:     brokerCfg.StaleTimeout,
		stopCh:           make(chan struct{}),
	}
	p.setState(StateStarting)
	p.heartbeat = NewHeartbeat(b, id, queues, workerCfg.Concurrency, workerCfg.HeartbeatInterval)
	return p
}

// ID returns the pool's worker ID, the identity published to the broker.
func (p *Pool) ID() string {
	return p.id
}

// State returns the pool's current lifecycle state.
func (p *Pool) State() State {
	return p.state.Load().(State)
}

func (p *Pool) setState(s State) {
	p.state.Store(s)
	if p.heartbeat != nil {
		p.heartbeat.SetState(s)
	}
}

// ActiveTasks returns how many handlers are currently executing.
func (p *Pool) ActiveTasks() int {
	return int(atomic.LoadInt32(&p.active))
}

// SetPublisher attaches an event publisher so worker join/leave are
// broadcast to WebSocket subscribers. Call before Start.
func (p *Pool) SetPublisher(publisher *events.RedisPubSub) {
	p.heartbeat.SetPublisher(publisher)
}

// Start spawns the worker goroutines and the heartbeat and recovery loops.
func (p *Pool) Start(ctx context.Context) error {
	p.setState(StateIdle)
	p.heartbeat.Start(ctx)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		RecoveryLoop(ctx, p.broker, p.recoveryInterval, p.staleTimeout, p.stopCh)
	}()

	logger.WithWorker(p.id).Info().
		Int("concurrency", p.concurrency).
		Strs("queues", p.queues).
		Msg("worker pool started")
	return nil
}

// Stop signals every goroutine to stop and waits up to shutdownTimeout for
// in-flight tasks to finish before giving up.
func (p *Pool) Stop(ctx context.Context) error {
	p.setState(StateStopping)
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	log := logger.WithWorker(p.id)
	select {
	case <-done:
		log.Info().Msg("worker pool stopped gracefully")
	case <-time.After(p.shutdownTimeout):
		log.Warn().Msg("worker pool shutdown timed out waiting for in-flight tasks")
	case <-ctx.Done():
		log.Warn().Msg("worker pool shutdown canceled")
	}

	p.heartbeat.Stop()
	p.setState(StateStopped)
	return nil
}

func (p *Pool) run(ctx context.Context, slot int) {
	defer p.wg.Done()

	log := logger.WithWorker(p.id)
	log.Debug().Int("slot", slot).Msg("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		activeQueues, err := p.unpausedQueues(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to check paused queues")
			activeQueues = p.queues
		}
		if len(activeQueues) == 0 {
			select {
			case <-time.After(time.Second):
				continue
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		if err := p.processNext(ctx, activeQueues); err != nil {
			log.Error().Err(err).Msg("error processing task")
		}
	}
}

func (p *Pool) unpausedQueues(ctx context.Context) ([]string, error) {
	active := make([]string, 0, len(p.queues))
	for _, q := range p.queues {
		paused, err := p.broker.IsPaused(ctx, q)
		if err != nil {
			return nil, err
		}
		if !paused {
			active = append(active, q)
		}
	}
	return active, nil
}

// processNext blocks for up to dequeueTimeout waiting for a task, then
// executes it and reports the outcome back to the broker.
func (p *Pool) processNext(ctx context.Context, queues []string) error {
	t, err := p.broker.Dequeue(ctx, p.dequeueTimeout, queues...)
	if err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}
	if t == nil {
		return nil
	}

	atomic.AddInt32(&p.active, 1)
	p.setState(StateBusy)
	p.heartbeat.SetActiveTasks(p.ActiveTasks())
	p.heartbeat.SetCurrentTask(t.ID, t.Name)
	defer func() {
		n := atomic.AddInt32(&p.active, -1)
		if n == 0 {
			p.setState(StateIdle)
		}
		p.heartbeat.SetActiveTasks(p.ActiveTasks())
		p.heartbeat.SetCurrentTask("", "")
	}()

	taskCtx, cancel := context.WithTimeout(ctx, t.Timeout(p.defaultTimeout))
	defer cancel()

	result, execErr := p.executor.Execute(taskCtx, t)
	if execErr != nil {
		return p.handleFailure(ctx, t, execErr)
	}
	return p.handleSuccess(ctx, t, result)
}

func (p *Pool) handleSuccess(ctx context.Context, t *task.Task, result map[string]interface{}) error {
	if err := t.MarkCompleted(result); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if err := p.broker.UpdateTask(ctx, t); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	p.heartbeat.IncrementCompleted()
	metrics.RecordTaskCompletion(t.Name, string(task.StatusCompleted), t.Duration().Seconds())
	logger.WithTask(t.ID).Info().Str("name", t.Name).Int("retries", t.Retries).Msg("task completed")
	return nil
}

func (p *Pool) handleFailure(ctx context.Context, t *task.Task, execErr error) error {
	log := logger.WithTask(t.ID)
	log.Error().Err(execErr).Str("name", t.Name).Msg("task execution failed")

	p.heartbeat.IncrementFailed()

	if err := t.MarkFailed(execErr.Error()); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if err := p.broker.UpdateTask(ctx, t); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	retried, err := p.broker.RetryTask(ctx, t)
	if err != nil {
		return fmt.Errorf("retry task: %w", err)
	}
	if retried {
		metrics.RecordTaskRetry(t.Name)
		log.Info().Int("retries", t.Retries).Dur("backoff", task.Backoff(t.Retries-1)).Msg("task scheduled for retry")
		return nil
	}

	if err := p.broker.AddToDeadLetter(ctx, t.Queue, t.ID); err != nil {
		return fmt.Errorf("add to dead letter: %w", err)
	}
	metrics.RecordTaskCompletion(t.Name, string(task.StatusFailed), t.Duration().Seconds())
	metrics.RecordDeadLetter(t.Name, t.Queue)
	log.Warn().Msg("retries exhausted, task moved to dead letter queue")
	return nil
}
