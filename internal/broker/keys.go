package broker

import "fmt"

// Key layout is part of the external interface (§6): operator tools and
// independent readers rely on these exact patterns, so they are not an
// implementation detail to be refactored freely.
const pausedQueuesKey = "queues:paused"
const activeWorkersKey = "workers:active"

func taskKey(id string) string {
	return fmt.Sprintf("task:%s", id)
}

func pendingKey(queue string) string {
	return fmt.Sprintf("queue:%s:pending", queue)
}

func processingKey(queue string) string {
	return fmt.Sprintf("queue:%s:processing", queue)
}

func completedKey(queue string) string {
	return fmt.Sprintf("queue:%s:completed", queue)
}

func failedKey(queue string) string {
	return fmt.Sprintf("queue:%s:failed", queue)
}

func dlqKey(queue string) string {
	return fmt.Sprintf("queue:%s:dlq:failed", queue)
}

func workerKey(id string) string {
	return fmt.Sprintf("worker:%s", id)
}
