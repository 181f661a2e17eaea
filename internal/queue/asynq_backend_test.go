package queue

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis points at a port nothing listens on.
func unreachableRedis() *AsynqBackend {
	return NewAsynqBackend(AsynqConfig{
		Redis:  RedisConfig{Addr: "127.0.0.1:1"},
		Queues: testQueues,
	})
}

func TestAsynqBackend_StartFailsWhenRedisDown(t *testing.T) {
	b := unreachableRedis()
	defer b.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := b.Start(ctx)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	assert.False(t, b.Available(ctx))
	assert.Equal(t, "queue", b.Name())
}

func TestAsynqBackend_RejectsUnknownQueue(t *testing.T) {
	b := unreachableRedis()
	defer b.Shutdown(context.Background())

	_, err := b.AddJob(context.Background(), "nope", "x", nil, JobOptions{})
	require.ErrorIs(t, err, ErrUnknownQueue)
	require.ErrorIs(t, b.ScheduleRecurring("nope", "x", nil, "* * * * *", JobOptions{}), ErrUnknownQueue)
	require.ErrorIs(t, b.ResumeQueue(context.Background(), "nope"), ErrUnknownQueue)
}

func TestAsynqBackend_AddJobBeforeStart(t *testing.T) {
	b := unreachableRedis()
	defer b.Shutdown(context.Background())

	_, err := b.AddJob(context.Background(), "publishing", "posts:publish", nil, JobOptions{})
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestAsynqBackend_RetryDelayUsesJobBackoff(t *testing.T) {
	b := unreachableRedis()
	defer b.Shutdown(context.Background())

	b.setBackoff("posts:publish_due", time.Second)
	assert.Equal(t, time.Second, b.retryDelay(0, nil, newTestTask("posts:publish_due")))
	assert.Equal(t, 4*time.Second, b.retryDelay(2, nil, newTestTask("posts:publish_due")))
	assert.Equal(t, DefaultBackoff, b.retryDelay(0, nil, newTestTask("unknown")))
}

func newTestTask(jobType string) *asynq.Task {
	return asynq.NewTask(jobType, nil)
}

func TestAsynqBackend_HandleTwiceKeepsFirst(t *testing.T) {
	b := unreachableRedis()
	defer b.Shutdown(context.Background())

	h := func(ctx context.Context, payload []byte) error { return nil }
	b.Handle("posts:publish_due", h)
	assert.NotPanics(t, func() { b.Handle("posts:publish_due", h) })
}
