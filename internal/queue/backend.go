package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/transfer"
)

var (
	ErrBackendUnavailable = errors.New("queue backend unavailable")
	ErrUnknownQueue       = errors.New("unknown queue")
	ErrNotStarted         = errors.New("queue backend not started")
	ErrBackendStopped     = errors.New("queue backend stopped")
)

const (
	DefaultAttempts  = 3
	DefaultBackoff   = 10 * time.Second
	DefaultRetention = 24 * time.Hour
)

// Handler processes one job payload. Returning an error wrapped with SkipRetry fails the job
// without further attempts.
type Handler func(ctx context.Context, payload []byte) error

// JobOptions tunes a single job. Zero values take the package defaults.
type JobOptions struct {
	JobID     string
	Attempts  int
	Backoff   time.Duration
	Retention time.Duration
	Timeout   time.Duration
}

func (o JobOptions) withDefaults() JobOptions {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	return o
}

// Backend is a job queue with named, prioritised queues. Handlers are registered before Start;
// recurring schedules may be added before or after it.
type Backend interface {
	Name() string
	Handle(jobType string, h Handler)
	// Start fails with ErrBackendUnavailable when the backing store cannot be reached.
	Start(ctx context.Context) error
	ScheduleRecurring(queue, jobType string, payload []byte, cronExpr string, opts JobOptions) error
	AddJob(ctx context.Context, queue, jobType string, payload []byte, opts JobOptions) (string, error)
	PauseQueue(ctx context.Context, queue string) error
	ResumeQueue(ctx context.Context, queue string) error
	QueueMetrics(ctx context.Context) ([]transfer.QueueMetrics, error)
	Available(ctx context.Context) bool
	Shutdown(ctx context.Context) error
}

// SkipRetry marks err as permanent.
func SkipRetry(err error) error {
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

func IsSkipRetry(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}

// queueNames orders queues by priority, highest first.
func queueNames(priorities map[string]int) []string {
	names := make([]string, 0, len(priorities))
	for name := range priorities {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if priorities[names[i]] != priorities[names[j]] {
			return priorities[names[i]] > priorities[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
