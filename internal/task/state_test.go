package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingTask(t *testing.T, maxRetries int) *Task {
	t.Helper()
	tk, err := New("t", nil, 5, Options{MaxRetries: maxRetries})
	require.NoError(t, err)
	return tk
}

func TestMarkProcessing(t *testing.T) {
	tk := newPendingTask(t, 3)

	require.NoError(t, tk.MarkProcessing())
	assert.Equal(t, StatusProcessing, tk.Status)
	require.NotNil(t, tk.StartedAt)
}

func TestMarkProcessing_WrongState(t *testing.T) {
	tk := newPendingTask(t, 3)
	require.NoError(t, tk.MarkProcessing())

	err := tk.MarkProcessing()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkCompleted(t *testing.T) {
	tk := newPendingTask(t, 3)
	require.NoError(t, tk.MarkProcessing())

	result := map[string]interface{}{"v": 42.0}
	require.NoError(t, tk.MarkCompleted(result))

	assert.Equal(t, StatusCompleted, tk.Status)
	assert.Equal(t, result, tk.Result)
	assert.Empty(t, tk.Error)
	require.NotNil(t, tk.CompletedAt)
}

func TestMarkCompleted_RequiresProcessing(t *testing.T) {
	tk := newPendingTask(t, 3)
	err := tk.MarkCompleted(nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkFailed(t *testing.T) {
	tk := newPendingTask(t, 3)
	require.NoError(t, tk.MarkProcessing())

	require.NoError(t, tk.MarkFailed("boom"))

	assert.Equal(t, StatusFailed, tk.Status)
	assert.Equal(t, "boom", tk.Error)
	assert.Nil(t, tk.Result)
	require.NotNil(t, tk.CompletedAt)
}

func TestMarkFailed_RequiresProcessing(t *testing.T) {
	tk := newPendingTask(t, 3)
	err := tk.MarkFailed("boom")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPrepareRetry(t *testing.T) {
	tk := newPendingTask(t, 2)
	require.NoError(t, tk.MarkProcessing())
	require.NoError(t, tk.MarkFailed("boom"))

	require.NoError(t, tk.PrepareRetry())

	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, 1, tk.Retries)
	assert.Nil(t, tk.StartedAt)
	assert.Nil(t, tk.CompletedAt)
	assert.Empty(t, tk.Error)
}

func TestPrepareRetry_ExhaustedDoesNotMutate(t *testing.T) {
	tk := newPendingTask(t, 1)
	require.NoError(t, tk.MarkProcessing())
	require.NoError(t, tk.MarkFailed("boom"))
	require.NoError(t, tk.PrepareRetry()) // retries: 0 -> 1, budget now exhausted

	require.NoError(t, tk.MarkProcessing())
	require.NoError(t, tk.MarkFailed("boom again"))

	before := *tk
	err := tk.PrepareRetry()

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, before, *tk)
}

func TestInvariant_RetriesNeverExceedsMaxRetries(t *testing.T) {
	tk := newPendingTask(t, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, tk.MarkProcessing())
		require.NoError(t, tk.MarkFailed("boom"))
		require.NoError(t, tk.PrepareRetry())
	}

	assert.Equal(t, 3, tk.Retries)
	assert.False(t, tk.CanRetry())

	require.NoError(t, tk.MarkProcessing())
	require.NoError(t, tk.MarkFailed("final"))
	assert.ErrorIs(t, tk.PrepareRetry(), ErrRetriesExhausted)
	assert.LessOrEqual(t, tk.Retries, tk.MaxRetries+1)
}
