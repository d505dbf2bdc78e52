// Command producer submits a single task to a running API server and prints
// the server's record of it. It is a thin CLI wrapper over pkg/client, meant
// for smoke-testing a deployment or scripting task submission.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sreeyuthgunnam/distributed-task-queue/pkg/client"
)

func main() {
	var (
		baseURL    = flag.String("url", getEnv("TASKQUEUE_URL", "http://localhost:8080"), "task queue API base URL")
		apiKey     = flag.String("api-key", os.Getenv("TASKQUEUE_API_KEY"), "API key, if auth is enabled")
		name       = flag.String("name", "", "task name (required)")
		payload    = flag.String("payload", "{}", "task payload as a JSON object")
		priority   = flag.Int("priority", 5, "task priority, higher runs first")
		queue      = flag.String("queue", "", "queue name, empty uses the server's default")
		maxRetries = flag.Int("max-retries", -1, "max retry attempts, negative uses the server's default")
		timeoutSec = flag.Int("timeout", 0, "task timeout in seconds, 0 uses the server's default")
		watch      = flag.Bool("watch", false, "after submitting, stream events over the WebSocket for 10s")
		timeout    = flag.Duration("request-timeout", 30*time.Second, "HTTP request timeout")
	)
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "producer: -name is required")
		flag.Usage()
		os.Exit(2)
	}

	var payloadMap map[string]interface{}
	if err := json.Unmarshal([]byte(*payload), &payloadMap); err != nil {
		log.Fatalf("producer: invalid -payload JSON: %v", err)
	}

	opts := []client.Option{client.WithTimeout(*timeout)}
	if *apiKey != "" {
		opts = append(opts, client.WithAPIKey(*apiKey))
	}

	c, err := client.New(*baseURL, opts...)
	if err != nil {
		log.Fatalf("producer: failed to create client: %v", err)
	}

	ctx := context.Background()

	if _, err := c.CheckHealth(ctx); err != nil {
		log.Fatalf("producer: server health check failed: %v", err)
	}

	p := *priority
	req := client.CreateTaskRequest{
		Name:     *name,
		Payload:  payloadMap,
		Priority: &p,
		Queue:    *queue,
	}
	if *maxRetries >= 0 {
		mr := *maxRetries
		req.MaxRetries = &mr
	}
	if *timeoutSec > 0 {
		ts := *timeoutSec
		req.TimeoutSeconds = &ts
	}

	t, err := c.SubmitTask(ctx, req)
	if err != nil {
		log.Fatalf("producer: failed to submit task: %v", err)
	}
	fmt.Printf("submitted task %s (name=%s queue=%s priority=%d status=%s)\n", t.ID, t.Name, t.Queue, t.Priority, t.Status)

	if !*watch {
		return
	}

	if err := c.ConnectWebSocket(ctx); err != nil {
		log.Printf("producer: failed to connect websocket: %v", err)
		return
	}
	defer c.CloseWebSocket()

	if err := c.SubscribeEvents(
		client.EventTaskSubmitted,
		client.EventTaskStarted,
		client.EventTaskCompleted,
		client.EventTaskFailed,
		client.EventTaskRetrying,
	); err != nil {
		log.Printf("producer: failed to subscribe to events: %v", err)
		return
	}

	fmt.Println("watching events for 10s...")
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event, ok := <-c.Events():
			if !ok {
				return
			}
			fmt.Printf("event: %s at %v data=%v\n", event.Type, event.Timestamp, event.Data)
		case <-deadline:
			fmt.Println("done watching")
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
