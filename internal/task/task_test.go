package task

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	payload := map[string]interface{}{"v": 42.0}
	tk, err := New("echo", payload, 5, Options{MaxRetries: 3})
	require.NoError(t, err)

	assert.NotEmpty(t, tk.ID)
	assert.Len(t, tk.ID, 36)
	assert.Equal(t, "echo", tk.Name)
	assert.Equal(t, payload, tk.Payload)
	assert.Equal(t, 5, tk.Priority)
	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, 0, tk.Retries)
	assert.Equal(t, 3, tk.MaxRetries)
	assert.False(t, tk.CreatedAt.IsZero())
	assert.Nil(t, tk.StartedAt)
	assert.Nil(t, tk.CompletedAt)
}

func TestNew_InvalidPriority(t *testing.T) {
	tests := []int{0, -1, 11, 100}
	for _, p := range tests {
		_, err := New("t", nil, p, Options{})
		assert.ErrorIs(t, err, ErrInvalidPriority)
	}
}

func TestNew_NegativeMaxRetriesClampedToZero(t *testing.T) {
	tk, err := New("t", nil, 1, Options{MaxRetries: -5})
	require.NoError(t, err)
	assert.Equal(t, 0, tk.MaxRetries)
}

func TestTask_Timeout(t *testing.T) {
	tk, err := New("t", nil, 1, Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeout, tk.Timeout(DefaultTimeout))

	tk.TimeoutSeconds = 30
	assert.Equal(t, 30*time.Second, tk.Timeout(DefaultTimeout))
}

func TestTask_Duration(t *testing.T) {
	tk, err := New("t", nil, 1, Options{})
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), tk.Duration())

	require.NoError(t, tk.MarkProcessing())
	require.NoError(t, tk.MarkCompleted(nil))

	assert.True(t, tk.Duration() >= 0)
}

func TestTask_CanRetry(t *testing.T) {
	tk, err := New("t", nil, 1, Options{MaxRetries: 2})
	require.NoError(t, err)

	assert.True(t, tk.CanRetry())
	tk.Retries = 1
	assert.True(t, tk.CanRetry())
	tk.Retries = 2
	assert.False(t, tk.CanRetry())
}

func TestTask_ToJSON_FromJSON_RoundTrip(t *testing.T) {
	original, err := New("email", map[string]interface{}{"to": "a@b.com"}, 7, Options{Queue: "default", MaxRetries: 2})
	require.NoError(t, err)

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Name, restored.Name)
	assert.Equal(t, original.Payload, restored.Payload)
	assert.Equal(t, original.Priority, restored.Priority)
	assert.Equal(t, original.Status, restored.Status)
	assert.Equal(t, original.Queue, restored.Queue)
	assert.Equal(t, original.MaxRetries, restored.MaxRetries)
	assert.Equal(t, original.Retries, restored.Retries)
}

func TestTask_FromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestTask_JSONWireForm(t *testing.T) {
	tk, err := New("t", map[string]interface{}{"k": "v"}, 9, Options{})
	require.NoError(t, err)

	data, err := tk.ToJSON()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "id")
	assert.Contains(t, raw, "name")
	assert.Contains(t, raw, "payload")
	assert.Contains(t, raw, "status")
	assert.Contains(t, raw, "priority")
	assert.Contains(t, raw, "created_at")
	assert.Contains(t, raw, "retries")
	assert.Contains(t, raw, "max_retries")
	assert.NotContains(t, raw, "started_at") // omitempty while nil
	assert.NotContains(t, raw, "result")
	assert.NotContains(t, raw, "error")
}

func TestTask_JSONWireForm_TimestampLayout(t *testing.T) {
	tk, err := New("t", nil, 1, Options{})
	require.NoError(t, err)
	require.NoError(t, tk.MarkProcessing())
	require.NoError(t, tk.MarkCompleted(nil))

	data, err := tk.ToJSON()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	wireTimePattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}\+00:00$`)
	assert.Regexp(t, wireTimePattern, raw["created_at"])
	assert.Regexp(t, wireTimePattern, raw["started_at"])
	assert.Regexp(t, wireTimePattern, raw["completed_at"])
}

func TestTask_ToJSON_FromJSON_RoundTrip_Timestamps(t *testing.T) {
	original, err := New("email", nil, 5, Options{})
	require.NoError(t, err)
	require.NoError(t, original.MarkProcessing())
	require.NoError(t, original.MarkCompleted(map[string]interface{}{"ok": true}))

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	assert.True(t, original.CreatedAt.Equal(restored.CreatedAt))
	require.NotNil(t, restored.StartedAt)
	assert.True(t, original.StartedAt.Equal(*restored.StartedAt))
	require.NotNil(t, restored.CompletedAt)
	assert.True(t, original.CompletedAt.Equal(*restored.CompletedAt))
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
	}{
		{"pending", StatusPending},
		{"processing", StatusProcessing},
		{"completed", StatusCompleted},
		{"failed", StatusFailed},
		{"garbage", StatusPending},
		{"", StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseStatus(tt.input))
		})
	}
}
