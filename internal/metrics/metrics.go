// Package metrics exposes the Prometheus collectors the broker, worker
// pool, and HTTP/WebSocket layers update as they process tasks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"name", "queue"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_completed_total",
			Help: "Total number of tasks finished, by outcome",
		},
		[]string{"name", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskqueue_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"name"},
	)

	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_task_retries_total",
			Help: "Total number of task retries scheduled",
		},
		[]string{"name"},
	)

	TasksDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_dead_lettered_total",
			Help: "Total number of tasks moved to a queue's dead letter set",
		},
		[]string{"name", "queue"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskqueue_queue_depth",
			Help: "Current number of pending tasks in a queue",
		},
		[]string{"queue"},
	)

	QueueLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskqueue_queue_latency_seconds",
			Help:    "Time a task spent pending before being dequeued",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"queue"},
	)

	QueuePaused = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskqueue_queue_paused",
			Help: "1 if the queue is currently paused, 0 otherwise",
		},
		[]string{"queue"},
	)

	// Worker metrics
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskqueue_active_workers",
			Help: "Current number of workers with a recent heartbeat",
		},
	)

	StaleWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskqueue_stale_workers",
			Help: "Current number of workers with no recent heartbeat",
		},
	)

	WorkerBusyTime = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_worker_busy_seconds_total",
			Help: "Total time a worker spent executing handlers",
		},
		[]string{"worker_id"},
	)

	OrphanedTasksRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskqueue_orphaned_tasks_recovered_total",
			Help: "Total number of tasks requeued after their owning worker went stale",
		},
	)

	// DLQ metrics
	DLQSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskqueue_dlq_size",
			Help: "Current number of tasks in a queue's dead letter set",
		},
		[]string{"queue"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskqueue_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskqueue_redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~200ms
		},
		[]string{"operation"},
	)

	RedisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_redis_errors_total",
			Help: "Total number of Redis errors",
		},
		[]string{"operation"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskqueue_websocket_connections",
			Help: "Current number of WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_websocket_messages_total",
			Help: "Total number of WebSocket messages sent, by event type",
		},
		[]string{"type"},
	)
)

// RecordTaskEnqueued records a task being submitted to a queue.
func RecordTaskEnqueued(name, queue string) {
	TasksEnqueued.WithLabelValues(name, queue).Inc()
}

// RecordTaskCompletion records a task's terminal outcome and execution time.
func RecordTaskCompletion(name, status string, durationSeconds float64) {
	TasksCompleted.WithLabelValues(name, status).Inc()
	TaskDuration.WithLabelValues(name).Observe(durationSeconds)
}

// RecordTaskRetry records a task being scheduled for another attempt.
func RecordTaskRetry(name string) {
	TaskRetries.WithLabelValues(name).Inc()
}

// RecordDeadLetter records a task exhausting its retries into queue's dead
// letter set.
func RecordDeadLetter(name, queue string) {
	TasksDeadLettered.WithLabelValues(name, queue).Inc()
}

// UpdateQueueDepth sets the pending-task gauge for a queue.
func UpdateQueueDepth(queue string, depth float64) {
	QueueDepth.WithLabelValues(queue).Set(depth)
}

// RecordQueueLatency records how long a task waited pending before being
// dequeued.
func RecordQueueLatency(queue string, latencySeconds float64) {
	QueueLatency.WithLabelValues(queue).Observe(latencySeconds)
}

// SetQueuePaused reflects a queue's pause state in the paused gauge.
func SetQueuePaused(queue string, paused bool) {
	v := 0.0
	if paused {
		v = 1.0
	}
	QueuePaused.WithLabelValues(queue).Set(v)
}

// SetWorkerCounts updates the active/stale worker gauges.
func SetWorkerCounts(active, stale int) {
	ActiveWorkers.Set(float64(active))
	StaleWorkers.Set(float64(stale))
}

// RecordWorkerBusyTime adds to the time a worker spent executing handlers.
func RecordWorkerBusyTime(workerID string, durationSeconds float64) {
	WorkerBusyTime.WithLabelValues(workerID).Add(durationSeconds)
}

// RecordOrphanRecovery records tasks recovered in a single recovery pass.
func RecordOrphanRecovery(count int) {
	OrphanedTasksRecovered.Add(float64(count))
}

// SetDLQSize sets the dead letter gauge for a queue.
func SetDLQSize(queue string, size float64) {
	DLQSize.WithLabelValues(queue).Set(size)
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRedisOperation records a Redis call's duration.
func RecordRedisOperation(operation string, durationSeconds float64) {
	RedisOperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordRedisError records a Redis call failing.
func RecordRedisError(operation string) {
	RedisErrors.WithLabelValues(operation).Inc()
}

// SetWebSocketConnections sets the live WebSocket connection gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a single outbound WebSocket event.
func RecordWebSocketMessage(eventType string) {
	WebSocketMessages.WithLabelValues(eventType).Inc()
}
