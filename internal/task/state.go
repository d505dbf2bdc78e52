package task

import "time"

// MarkProcessing transitions pending -> processing, stamping started_at.
// Fails loudly (no mutation) if the task is not currently pending.
func (t *Task) MarkProcessing() error {
	if t.Status != StatusPending {
		return ErrInvalidTransition
	}
	now := roundToMillis(time.Now())
	t.Status = StatusProcessing
	t.StartedAt = &now
	return nil
}

// MarkCompleted transitions processing -> completed, storing the result
// and clearing any error (result and error are mutually exclusive).
func (t *Task) MarkCompleted(result map[string]interface{}) error {
	if t.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	now := roundToMillis(time.Now())
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.Result = result
	t.Error = ""
	return nil
}

// MarkFailed transitions processing -> failed, storing the error message
// and clearing any result.
func (t *Task) MarkFailed(errMsg string) error {
	if t.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	now := roundToMillis(time.Now())
	t.Status = StatusFailed
	t.CompletedAt = &now
	t.Error = errMsg
	t.Result = nil
	return nil
}

// PrepareRetry transitions failed -> pending: increments retries, clears
// started_at, completed_at and error. Requires retries < max_retries;
// calling it once the budget is exhausted raises ErrRetriesExhausted and
// leaves the task untouched.
func (t *Task) PrepareRetry() error {
	if !t.CanRetry() {
		return ErrRetriesExhausted
	}
	t.Retries++
	t.Status = StatusPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Error = ""
	return nil
}
