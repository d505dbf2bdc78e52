package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/broker"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/events"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/logger"
)

// Info is the liveness record a worker publishes to the broker so that
// admin tooling and the recovery loop can see what every worker is doing.
// Field names and JSON tags mirror the spec's WorkerState wire form.
type Info struct {
	ID              string    `json:"worker_id"`
	Queues          []string  `json:"queues"`
	State           string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	CurrentTaskID   string    `json:"current_task_id,omitempty"`
	CurrentTaskName string    `json:"current_task_name,omitempty"`
	TasksCompleted  int64     `json:"tasks_completed"`
	TasksFailed     int64     `json:"tasks_failed"`
	ActiveTasks     int       `json:"active_tasks"`
	Concurrency     int       `json:"concurrency"`
}

// Heartbeat periodically republishes a worker's Info to the broker so that
// other workers' recovery loops and the admin API can tell it is alive.
type Heartbeat struct {
	b         *broker.Broker
	publisher *events.RedisPubSub
	workerID  string
	interval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	infoMu sync.Mutex
	info   Info
}

// NewHeartbeat creates a Heartbeat for workerID, publishing every interval.
func NewHeartbeat(b *broker.Broker, workerID string, queues []string, concurrency int, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		b:        b,
		workerID: workerID,
		interval: interval,
		stopCh:   make(chan struct{}),
		info: Info{
			ID:          workerID,
			Queues:      queues,
			State:       string(StateStarting),
			StartedAt:   time.Now().UTC(),
			Concurrency: concurrency,
		},
	}
}

// SetPublisher attaches an event publisher so worker join/leave are
// broadcast to WebSocket subscribers. Passing nil disables broadcasting.
func (h *Heartbeat) SetPublisher(publisher *events.RedisPubSub) {
	h.publisher = publisher
}

// Start registers the worker and begins the periodic publish loop.
func (h *Heartbeat) Start(ctx context.Context) {
	h.publish(ctx)

	h.wg.Add(1)
	go h.loop(ctx)

	if h.publisher != nil {
		if err := h.publisher.PublishWorkerEvent(ctx, events.EventWorkerJoined, h.workerID, string(StateStarting), nil); err != nil {
			logger.WithWorker(h.workerID).Error().Err(err).Msg("failed to publish worker joined event")
		}
	}

	logger.WithWorker(h.workerID).Info().Dur("interval", h.interval).Msg("heartbeat started")
}

// Stop halts the publish loop and deregisters the worker.
func (h *Heartbeat) Stop() {
	close(h.stopCh)
	h.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.b.DeregisterWorker(ctx, h.workerID); err != nil {
		logger.WithWorker(h.workerID).Error().Err(err).Msg("failed to deregister worker")
	}

	if h.publisher != nil {
		if err := h.publisher.PublishWorkerEvent(ctx, events.EventWorkerLeft, h.workerID, string(StateStopped), nil); err != nil {
			logger.WithWorker(h.workerID).Error().Err(err).Msg("failed to publish worker left event")
		}
	}

	logger.WithWorker(h.workerID).Info().Msg("heartbeat stopped")
}

// SetState updates the published worker state (starting/idle/busy/stopping).
func (h *Heartbeat) SetState(state State) {
	h.infoMu.Lock()
	h.info.State = string(state)
	h.infoMu.Unlock()
}

// SetActiveTasks updates the published active task count.
func (h *Heartbeat) SetActiveTasks(count int) {
	h.infoMu.Lock()
	h.info.ActiveTasks = count
	h.infoMu.Unlock()
}

// SetCurrentTask records which task this worker is processing, so a
// recovery loop can find it if the worker goes stale mid-task. Empty
// strings clear it.
func (h *Heartbeat) SetCurrentTask(taskID, taskName string) {
	h.infoMu.Lock()
	h.info.CurrentTaskID = taskID
	h.info.CurrentTaskName = taskName
	h.infoMu.Unlock()
}

// IncrementCompleted bumps this worker's lifetime completed-task counter.
func (h *Heartbeat) IncrementCompleted() {
	h.infoMu.Lock()
	h.info.TasksCompleted++
	h.infoMu.Unlock()
}

// IncrementFailed bumps this worker's lifetime failed-task counter.
func (h *Heartbeat) IncrementFailed() {
	h.infoMu.Lock()
	h.info.TasksFailed++
	h.infoMu.Unlock()
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.publish(ctx)
		}
	}
}

func (h *Heartbeat) publish(ctx context.Context) {
	h.infoMu.Lock()
	h.info.LastHeartbeat = time.Now().UTC()
	data, err := json.Marshal(h.info)
	h.infoMu.Unlock()

	if err != nil {
		logger.WithWorker(h.workerID).Error().Err(err).Msg("failed to marshal worker info")
		return
	}

	if err := h.b.RegisterWorker(ctx, h.workerID, data); err != nil {
		logger.WithWorker(h.workerID).Error().Err(err).Msg("failed to publish heartbeat")
	}
}
