// Package client provides a Go SDK for the task queue's HTTP and WebSocket
// API: a thin, hand-written net/http wrapper (no code generation) plus a
// WebSocket client for real-time event streaming.
//
// # Basic Usage
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	priority := 5
//	t, err := c.SubmitTask(ctx, client.CreateTaskRequest{
//	    Name:     "email",
//	    Priority: &priority,
//	    Payload: map[string]interface{}{
//	        "to":      "user@example.com",
//	        "subject": "Hello",
//	    },
//	})
//
// # WebSocket Events
//
//	err := c.ConnectWebSocket(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.CloseWebSocket()
//
//	for event := range c.Events() {
//	    fmt.Printf("Event: %s\n", event.Type)
//	}
//
// # Configuration
//
// The client supports functional options for configuration:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithAPIKey("your-api-key"),
//	    client.WithTimeout(30 * time.Second),
//	)
package client
