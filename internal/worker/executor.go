package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sreeyuthgunnam/distributed-task-queue/internal/logger"
	"github.com/sreeyuthgunnam/distributed-task-queue/internal/task"
)

// TaskHandler processes a single task and returns its result payload.
type TaskHandler func(ctx context.Context, t *task.Task) (map[string]interface{}, error)

var (
	ErrHandlerNotFound = errors.New("worker: no handler registered for task name")
	ErrTaskTimeout      = errors.New("worker: task execution timed out")
	ErrTaskCanceled     = errors.New("worker: task execution canceled")
)

// Executor runs the handler registered for a task's name — a static
// registry, in place of reflection- or filesystem-based handler discovery.
type Executor struct {
	handlers map[string]TaskHandler
}

// NewExecutor creates an Executor over handlers, which may be nil.
func NewExecutor(handlers map[string]TaskHandler) *Executor {
	if handlers == nil {
		handlers = make(map[string]TaskHandler)
	}
	return &Executor{handlers: handlers}
}

// RegisterHandler registers handler for task name, overwriting any previous
// registration for the same name.
func (e *Executor) RegisterHandler(name string, handler TaskHandler) {
	e.handlers[name] = handler
}

// HasHandler reports whether a handler is registered for name.
func (e *Executor) HasHandler(name string) bool {
	_, ok := e.handlers[name]
	return ok
}

// HandlerNames returns every registered task name.
func (e *Executor) HandlerNames() []string {
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	return names
}

// Execute runs the handler registered for t.Name, recovering from a panic
// and translating a context deadline or cancellation into ErrTaskTimeout or
// ErrTaskCanceled. The pool routes every error the same way: retry while
// the task's retry budget lasts, dead letter after.
func (e *Executor) Execute(ctx context.Context, t *task.Task) (result map[string]interface{}, err error) {
	log := logger.WithTask(t.ID)

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Str("name", t.Name).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("task handler panicked")
			err = fmt.Errorf("worker: handler panicked: %v", r)
		}
	}()

	handler, ok := e.handlers[t.Name]
	if !ok {
		return nil, ErrHandlerNotFound
	}

	log.Debug().Str("name", t.Name).Int("attempt", t.Retries+1).Msg("executing task")

	start := time.Now()
	result, err = handler(ctx, t)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("duration", duration).Msg("task timed out")
			return nil, ErrTaskTimeout
		}
		if errors.Is(err, context.Canceled) {
			log.Warn().Dur("duration", duration).Msg("task canceled")
			return nil, ErrTaskCanceled
		}
		log.Error().Err(err).Dur("duration", duration).Msg("task failed")
		return nil, err
	}

	log.Debug().Dur("duration", duration).Msg("task executed successfully")
	return result, nil
}
