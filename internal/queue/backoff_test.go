package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		base time.Duration
		n    int
		want time.Duration
	}{
		{time.Second, 1, time.Second},
		{time.Second, 2, 2 * time.Second},
		{time.Second, 4, 8 * time.Second},
		{time.Second, 0, time.Second},
		{0, 1, DefaultBackoff},
		{time.Minute, 10, maxBackoff},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.base, tt.n), "base=%s n=%d", tt.base, tt.n)
	}
}

func TestQueueNamesByPriority(t *testing.T) {
	got := queueNames(map[string]int{"maintenance": 1, "publishing": 6, "sync": 2, "accounts": 2})
	assert.Equal(t, []string{"publishing", "accounts", "sync", "maintenance"}, got)
}

func TestSkipRetry(t *testing.T) {
	err := SkipRetry(ErrUnknownQueue)
	assert.True(t, IsSkipRetry(err))
	assert.ErrorIs(t, err, ErrUnknownQueue)
	assert.False(t, IsSkipRetry(ErrUnknownQueue))
}
