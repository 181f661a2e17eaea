package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AsynqConfig struct {
	Redis       RedisConfig
	Concurrency int
	// Queues maps queue name to priority weight.
	Queues   map[string]int
	Location *time.Location
	Logger   *slog.Logger
}

// AsynqBackend runs jobs through Redis: a Client for one-off jobs, a Scheduler for recurring
// ones, a Server for processing and an Inspector for metrics and pause.
type AsynqBackend struct {
	cfg       AsynqConfig
	logger    *slog.Logger
	ping      *redis.Client
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	inspector *asynq.Inspector
	mux       *asynq.ServeMux

	mu       sync.RWMutex
	backoffs map[string]time.Duration
	handled  map[string]bool
	started  bool
}

func NewAsynqBackend(cfg AsynqConfig) *AsynqBackend {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", "asynq")

	redisConn := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	b := &AsynqBackend{
		cfg:       cfg,
		logger:    logger,
		ping:      redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}),
		client:    asynq.NewClient(redisConn),
		inspector: asynq.NewInspector(redisConn),
		mux:       asynq.NewServeMux(),
		backoffs:  map[string]time.Duration{},
		handled:   map[string]bool{},
	}

	b.server = asynq.NewServer(redisConn, asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         cfg.Queues,
		RetryDelayFunc: b.retryDelay,
		Logger:         &asynqLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("job attempt failed", "job_type", task.Type(), "attempt", retried+1, "max_attempts", maxRetry+1, "error", err)
		}),
	})
	b.scheduler = asynq.NewScheduler(redisConn, &asynq.SchedulerOpts{
		Location: cfg.Location,
		Logger:   &asynqLogger{logger},
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("enqueue recurring job failed", "error", err)
			}
		},
	})
	return b
}

func (b *AsynqBackend) Name() string { return "queue" }

// Handle registers h for jobType. The ServeMux panics on duplicates, so later registrations
// of the same type are ignored.
func (b *AsynqBackend) Handle(jobType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handled[jobType] {
		b.logger.Warn("handler already registered", "job_type", jobType)
		return
	}
	b.handled[jobType] = true
	b.mux.HandleFunc(jobType, func(ctx context.Context, task *asynq.Task) error {
		return h(ctx, task.Payload())
	})
}

func (b *AsynqBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	if err := b.ping.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis %s: %v", ErrBackendUnavailable, b.cfg.Redis.Addr, err)
	}
	if err := b.server.Start(b.mux); err != nil {
		return fmt.Errorf("%w: start worker: %v", ErrBackendUnavailable, err)
	}
	if err := b.scheduler.Start(); err != nil {
		b.server.Shutdown()
		return fmt.Errorf("%w: start scheduler: %v", ErrBackendUnavailable, err)
	}

	b.started = true
	b.logger.Info("queue backend started", "queues", queueNames(b.cfg.Queues), "concurrency", b.cfg.Concurrency)
	return nil
}

func (b *AsynqBackend) ScheduleRecurring(queue, jobType string, payload []byte, cronExpr string, opts JobOptions) error {
	if _, ok := b.cfg.Queues[queue]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	opts = opts.withDefaults()
	b.setBackoff(jobType, opts.Backoff)

	entryID, err := b.scheduler.Register(cronExpr, asynq.NewTask(jobType, payload), b.taskOptions(queue, opts)...)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", jobType, err)
	}
	b.logger.Info("recurring job scheduled", "queue", queue, "job_type", jobType, "cron", cronExpr, "entry_id", entryID)
	return nil
}

func (b *AsynqBackend) AddJob(ctx context.Context, queue, jobType string, payload []byte, opts JobOptions) (string, error) {
	if _, ok := b.cfg.Queues[queue]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	if !b.isStarted() {
		return "", ErrNotStarted
	}
	opts = opts.withDefaults()
	b.setBackoff(jobType, opts.Backoff)

	taskOpts := b.taskOptions(queue, opts)
	if opts.JobID != "" {
		taskOpts = append(taskOpts, asynq.TaskID(opts.JobID))
	}

	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(jobType, payload), taskOpts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	b.logger.Info("job enqueued", "queue", queue, "job_type", jobType, "job_id", info.ID)
	return info.ID, nil
}

func (b *AsynqBackend) taskOptions(queue string, opts JobOptions) []asynq.Option {
	taskOpts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(opts.Attempts - 1),
		asynq.Retention(opts.Retention),
	}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}
	return taskOpts
}

func (b *AsynqBackend) PauseQueue(ctx context.Context, queue string) error {
	if _, ok := b.cfg.Queues[queue]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	return b.inspector.PauseQueue(queue)
}

func (b *AsynqBackend) ResumeQueue(ctx context.Context, queue string) error {
	if _, ok := b.cfg.Queues[queue]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	return b.inspector.UnpauseQueue(queue)
}

func (b *AsynqBackend) QueueMetrics(ctx context.Context) ([]transfer.QueueMetrics, error) {
	var metrics []transfer.QueueMetrics
	for _, name := range queueNames(b.cfg.Queues) {
		info, err := b.inspector.GetQueueInfo(name)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			// Redis has no keys for a queue until its first task.
			metrics = append(metrics, transfer.QueueMetrics{Queue: name})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("queue %s info: %w", name, err)
		}
		metrics = append(metrics, transfer.QueueMetrics{
			Queue:     name,
			Waiting:   info.Pending,
			Active:    info.Active,
			Completed: info.Completed,
			Failed:    info.Archived,
			Delayed:   info.Scheduled + info.Retry,
			Paused:    info.Paused,
		})
	}
	return metrics, nil
}

func (b *AsynqBackend) Available(ctx context.Context) bool {
	return b.ping.Ping(ctx).Err() == nil
}

func (b *AsynqBackend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	started := b.started
	b.started = false
	b.mu.Unlock()

	if started {
		b.scheduler.Shutdown()
		b.server.Shutdown()
	}

	return errors.Join(b.client.Close(), b.inspector.Close(), b.ping.Close())
}

func (b *AsynqBackend) isStarted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

func (b *AsynqBackend) setBackoff(jobType string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backoffs[jobType] = d
}

func (b *AsynqBackend) retryDelay(n int, err error, task *asynq.Task) time.Duration {
	b.mu.RLock()
	base := b.backoffs[task.Type()]
	b.mu.RUnlock()
	// n counts retries already made, starting at 0.
	return Backoff(base, n+1)
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
