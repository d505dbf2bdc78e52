// Package task defines the Task record: its fields, guarded lifecycle
// transitions, and canonical JSON serialization.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) String() string { return string(s) }

// ParseStatus converts a wire string into a Status, defaulting to pending
// for anything unrecognized so a corrupt record never fails to load.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s)
	default:
		return StatusPending
	}
}

var (
	ErrInvalidPriority   = errors.New("task: priority must be in [1,10]")
	ErrInvalidTransition = errors.New("task: invalid state transition")
	ErrRetriesExhausted  = errors.New("task: retries exhausted, cannot prepare another attempt")
	ErrInvalidTaskData   = errors.New("task: invalid task data")
	ErrTaskNotFound      = errors.New("task: not found")
)

const (
	MinPriority = 1
	MaxPriority = 10

	// DefaultTimeout is used when a task does not override task_timeout.
	DefaultTimeout = 5 * time.Minute
)

// wireTimeLayout is the millisecond-precision, explicit-offset ISO-8601
// form the spec's wire contract documents ("...sss+00:00"), rather than
// Go's default RFC3339Nano. The "-07:00" (no "Z" escape) layout always
// renders a numeric offset, so UTC comes out "+00:00" instead of "Z".
const wireTimeLayout = "2006-01-02T15:04:05.000-07:00"

func marshalWireTime(t time.Time) string {
	return t.UTC().Format(wireTimeLayout)
}

func parseWireTime(s string) (time.Time, error) {
	return time.Parse(wireTimeLayout, s)
}

// roundToMillis drops sub-millisecond precision so an in-memory timestamp
// already matches what the wire form will hold after a marshal/unmarshal
// round trip.
func roundToMillis(t time.Time) time.Time {
	return t.UTC().Round(time.Millisecond)
}

// Task is the unit of work carried through the broker.
type Task struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Payload     map[string]interface{} `json:"payload"`
	Status      Status                 `json:"status"`
	Priority    int                    `json:"priority"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Retries     int                    `json:"retries"`
	MaxRetries  int                    `json:"max_retries"`

	// Queue remembers the home queue a task was enqueued on, so the
	// retry/DLQ path and observer lookups never need it threaded
	// separately once a record is loaded back from the store.
	Queue string `json:"queue,omitempty"`

	// TimeoutSeconds overrides the worker-wide task_timeout for this
	// task alone; zero means "use the worker default".
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Options configures New beyond the required name/payload/priority.
type Options struct {
	Queue          string
	MaxRetries     int
	TimeoutSeconds int
}

// New creates a pending Task with sane defaults, rejecting out-of-range
// priority synchronously rather than deferring the check to enqueue time.
func New(name string, payload map[string]interface{}, priority int, opts Options) (*Task, error) {
	if priority < MinPriority || priority > MaxPriority {
		return nil, ErrInvalidPriority
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Task{
		ID:             uuid.New().String(),
		Name:           name,
		Payload:        payload,
		Status:         StatusPending,
		Priority:       priority,
		CreatedAt:      roundToMillis(time.Now()),
		Retries:        0,
		MaxRetries:     maxRetries,
		Queue:          opts.Queue,
		TimeoutSeconds: opts.TimeoutSeconds,
	}, nil
}

// Timeout returns the effective per-task handler deadline, falling back to
// defaultTimeout when the task does not carry its own override.
func (t *Task) Timeout(defaultTimeout time.Duration) time.Duration {
	if t.TimeoutSeconds > 0 {
		return time.Duration(t.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// Duration is derived, never stored: completed_at - started_at.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// CanRetry reports whether another attempt is within the retry budget.
func (t *Task) CanRetry() bool {
	return t.Retries < t.MaxRetries
}

// wireTask mirrors Task for JSON purposes, with timestamps swapped for
// their wireTimeLayout string form.
type wireTask struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Payload        map[string]interface{} `json:"payload"`
	Status         Status                 `json:"status"`
	Priority       int                    `json:"priority"`
	CreatedAt      string                 `json:"created_at"`
	StartedAt      *string                `json:"started_at,omitempty"`
	CompletedAt    *string                `json:"completed_at,omitempty"`
	Result         map[string]interface{} `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Retries        int                    `json:"retries"`
	MaxRetries     int                    `json:"max_retries"`
	Queue          string                 `json:"queue,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
}

// MarshalJSON renders the task in the spec's documented wire form:
// millisecond-precision timestamps with an explicit "+00:00" offset
// rather than Go's default RFC3339Nano.
func (t *Task) MarshalJSON() ([]byte, error) {
	w := wireTask{
		ID:             t.ID,
		Name:           t.Name,
		Payload:        t.Payload,
		Status:         t.Status,
		Priority:       t.Priority,
		CreatedAt:      marshalWireTime(t.CreatedAt),
		Result:         t.Result,
		Error:          t.Error,
		Retries:        t.Retries,
		MaxRetries:     t.MaxRetries,
		Queue:          t.Queue,
		TimeoutSeconds: t.TimeoutSeconds,
	}
	if t.StartedAt != nil {
		s := marshalWireTime(*t.StartedAt)
		w.StartedAt = &s
	}
	if t.CompletedAt != nil {
		s := marshalWireTime(*t.CompletedAt)
		w.CompletedAt = &s
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the wire form produced by MarshalJSON.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	createdAt, err := parseWireTime(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("task: parse created_at: %w", err)
	}

	*t = Task{
		ID:             w.ID,
		Name:           w.Name,
		Payload:        w.Payload,
		Status:         w.Status,
		Priority:       w.Priority,
		CreatedAt:      createdAt,
		Result:         w.Result,
		Error:          w.Error,
		Retries:        w.Retries,
		MaxRetries:     w.MaxRetries,
		Queue:          w.Queue,
		TimeoutSeconds: w.TimeoutSeconds,
	}

	if w.StartedAt != nil {
		startedAt, err := parseWireTime(*w.StartedAt)
		if err != nil {
			return fmt.Errorf("task: parse started_at: %w", err)
		}
		t.StartedAt = &startedAt
	}
	if w.CompletedAt != nil {
		completedAt, err := parseWireTime(*w.CompletedAt)
		if err != nil {
			return fmt.Errorf("task: parse completed_at: %w", err)
		}
		t.CompletedAt = &completedAt
	}

	return nil
}

// ToJSON serializes the task to its stable wire form.
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// FromJSON deserializes a task from its stable wire form.
func FromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
