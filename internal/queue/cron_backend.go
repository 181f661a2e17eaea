package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"
)

type CronConfig struct {
	Concurrency int
	// Queues maps queue name to priority weight. Free slots always go to the highest weight
	// queue with pending work.
	Queues   map[string]int
	Location *time.Location
	Logger   *slog.Logger
}

// CronBackend runs jobs in-process on a robfig/cron timer. Nothing survives a restart: pending
// jobs and jobs sleeping between attempts are dropped at shutdown, and a stopped backend cannot
// be started again.
type CronBackend struct {
	cfg    CronConfig
	logger *slog.Logger
	cron   *cron.Cron
	order  []string
	now    func() time.Time

	mu       sync.Mutex
	handlers map[string]Handler
	queues   map[string]*cronQueue
	running  int
	started  bool
	stopped  bool
	stopping chan struct{}
	wg       sync.WaitGroup
}

type cronQueue struct {
	paused    bool
	pending   []*cronJob
	active    int
	delayed   int
	completed []finished
	failed    []finished
}

type finished struct {
	at        time.Time
	retention time.Duration
}

type cronJob struct {
	id      string
	queue   string
	jobType string
	payload []byte
	opts    JobOptions
	attempt int
}

func NewCronBackend(cfg CronConfig) *CronBackend {
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

	queues := make(map[string]*cronQueue, len(cfg.Queues))
	for name := range cfg.Queues {
		queues[name] = &cronQueue{}
	}

	return &CronBackend{
		cfg:      cfg,
		logger:   logger.With("backend", "timer"),
		cron:     cron.New(cron.WithLocation(cfg.Location)),
		order:    queueNames(cfg.Queues),
		now:      time.Now,
		handlers: map[string]Handler{},
		queues:   queues,
		stopping: make(chan struct{}),
	}
}

func (b *CronBackend) Name() string { return "timer" }

func (b *CronBackend) Handle(jobType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[jobType] = h
}

func (b *CronBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrBackendStopped
	}
	if b.started {
		return nil
	}
	b.cron.Start()
	b.started = true
	b.logger.Info("queue backend started", "queues", b.order, "concurrency", b.cfg.Concurrency)
	return nil
}

func (b *CronBackend) ScheduleRecurring(queue, jobType string, payload []byte, cronExpr string, opts JobOptions) error {
	if _, ok := b.queues[queue]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	if b.isStopped() {
		return ErrBackendStopped
	}
	opts = opts.withDefaults()

	entryID, err := b.cron.AddFunc(cronExpr, func() {
		b.enqueue(&cronJob{id: gonanoid.Must(), queue: queue, jobType: jobType, payload: payload, opts: opts})
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", jobType, err)
	}
	b.logger.Info("recurring job scheduled", "queue", queue, "job_type", jobType, "cron", cronExpr, "entry_id", entryID)
	return nil
}

func (b *CronBackend) AddJob(ctx context.Context, queue, jobType string, payload []byte, opts JobOptions) (string, error) {
	if _, ok := b.queues[queue]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return "", ErrNotStarted
	}

	opts = opts.withDefaults()
	id := opts.JobID
	if id == "" {
		id = gonanoid.Must()
	}
	b.enqueue(&cronJob{id: id, queue: queue, jobType: jobType, payload: payload, opts: opts})
	b.logger.Info("job enqueued", "queue", queue, "job_type", jobType, "job_id", id)
	return id, nil
}

func (b *CronBackend) enqueue(job *cronJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	q := b.queues[job.queue]
	q.pending = append(q.pending, job)
	b.pump()
}

// pump hands free slots to pending jobs, highest weight queue first. Callers hold b.mu.
func (b *CronBackend) pump() {
	for b.started && b.running < b.cfg.Concurrency {
		job := b.next()
		if job == nil {
			return
		}
		b.running++
		b.queues[job.queue].active++
		b.wg.Add(1)
		go b.run(job)
	}
}

func (b *CronBackend) next() *cronJob {
	for _, name := range b.order {
		q := b.queues[name]
		if q.paused || len(q.pending) == 0 {
			continue
		}
		job := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		return job
	}
	return nil
}

func (b *CronBackend) run(job *cronJob) {
	defer b.wg.Done()
	job.attempt++
	logger := b.logger.With("queue", job.queue, "job_type", job.jobType, "job_id", job.id)

	b.mu.Lock()
	h, ok := b.handlers[job.jobType]
	b.mu.Unlock()

	var err error
	if ok {
		err = b.invoke(h, job)
	} else {
		err = SkipRetry(errors.New("no handler registered"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.running--
	q := b.queues[job.queue]
	q.active--

	switch {
	case err == nil:
		q.completed = append(q.completed, finished{at: b.now(), retention: job.opts.Retention})
	case job.attempt >= job.opts.Attempts || IsSkipRetry(err):
		logger.Error("job failed", "attempt", job.attempt, "error", err)
		q.failed = append(q.failed, finished{at: b.now(), retention: job.opts.Retention})
	default:
		delay := Backoff(job.opts.Backoff, job.attempt)
		logger.Warn("job attempt failed, retrying", "attempt", job.attempt, "retry_in", delay, "error", err)
		q.delayed++
		b.wg.Add(1)
		go b.retryAfter(job, delay)
	}
	b.pump()
}

// retryAfter puts job back on its queue once delay has passed. Shutdown abandons it.
func (b *CronBackend) retryAfter(job *cronJob, delay time.Duration) {
	defer b.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-b.stopping:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queues[job.queue]
	q.delayed--
	if !b.started {
		q.failed = append(q.failed, finished{at: b.now(), retention: job.opts.Retention})
		return
	}
	q.pending = append(q.pending, job)
	b.pump()
}

func (b *CronBackend) invoke(h Handler, job *cronJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	ctx := context.Background()
	if job.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.opts.Timeout)
		defer cancel()
	}
	return h(ctx, job.payload)
}

func (b *CronBackend) PauseQueue(ctx context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	q.paused = true
	return nil
}

// ResumeQueue releases jobs that piled up while the queue was paused.
func (b *CronBackend) ResumeQueue(ctx context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	q.paused = false
	b.pump()
	return nil
}

func (b *CronBackend) QueueMetrics(ctx context.Context) ([]transfer.QueueMetrics, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var metrics []transfer.QueueMetrics
	for _, name := range b.order {
		q := b.queues[name]
		q.completed = prune(q.completed, now)
		q.failed = prune(q.failed, now)
		metrics = append(metrics, transfer.QueueMetrics{
			Queue:     name,
			Waiting:   len(q.pending),
			Active:    q.active,
			Completed: len(q.completed),
			Failed:    len(q.failed),
			Delayed:   q.delayed,
			Paused:    q.paused,
		})
	}
	return metrics, nil
}

func prune(records []finished, now time.Time) []finished {
	kept := records[:0]
	for _, r := range records {
		if now.Sub(r.at) < r.retention {
			kept = append(kept, r)
		}
	}
	return kept
}

func (b *CronBackend) Available(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func (b *CronBackend) isStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Shutdown stops the timer, drops pending and sleeping jobs, and waits for running handlers
// until ctx expires.
func (b *CronBackend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	b.stopped = true
	close(b.stopping)
	for _, q := range b.queues {
		q.pending = nil
	}
	b.mu.Unlock()

	<-b.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("queue backend stopped")
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("timer backend: jobs still running at shutdown"), ctx.Err())
	}
}
