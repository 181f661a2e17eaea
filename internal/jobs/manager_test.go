package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scheduled struct {
	queue, jobType, cron string
	payload              []byte
	opts                 queue.JobOptions
}

type added struct {
	queue, jobType string
	payload        []byte
	opts           queue.JobOptions
}

type fakeBackend struct {
	mu        sync.Mutex
	startErr  error
	started   int
	handlers  map[string]queue.Handler
	handled   map[string]int
	scheduled []scheduled
	added     []added
	paused    map[string]bool
	shutdown  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{handlers: map[string]queue.Handler{}, handled: map[string]int{}, paused: map[string]bool{}}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Handle(jobType string, h queue.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[jobType] = h
	b.handled[jobType]++
}

func (b *fakeBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.started++
	return nil
}

func (b *fakeBackend) ScheduleRecurring(q, jobType string, payload []byte, cronExpr string, opts queue.JobOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scheduled = append(b.scheduled, scheduled{q, jobType, cronExpr, payload, opts})
	return nil
}

func (b *fakeBackend) AddJob(ctx context.Context, q, jobType string, payload []byte, opts queue.JobOptions) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added = append(b.added, added{q, jobType, payload, opts})
	return opts.JobID, nil
}

func (b *fakeBackend) PauseQueue(ctx context.Context, q string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused[q] = true
	return nil
}

func (b *fakeBackend) ResumeQueue(ctx context.Context, q string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused[q] = false
	return nil
}

func (b *fakeBackend) QueueMetrics(ctx context.Context) ([]transfer.QueueMetrics, error) {
	return []transfer.QueueMetrics{{Queue: QueuePublishing, Waiting: 2}}, nil
}

func (b *fakeBackend) Available(ctx context.Context) bool { return b.startErr == nil }

func (b *fakeBackend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdown++
	return nil
}

func (b *fakeBackend) run(t *testing.T, jobType string, payload []byte) error {
	t.Helper()
	b.mu.Lock()
	h, ok := b.handlers[jobType]
	b.mu.Unlock()
	require.True(t, ok, "no handler for %s", jobType)
	return h(context.Background(), payload)
}

type memoryTaskLogs struct {
	mu      sync.Mutex
	entries []*models.TaskLog
}

func (l *memoryTaskLogs) Create(ctx context.Context, tl *models.TaskLog) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, tl)
	return int64(len(l.entries)), nil
}

func (l *memoryTaskLogs) ListByWindow(ctx context.Context, from, to time.Time) ([]*models.TaskLog, error) {
	return nil, nil
}

func (l *memoryTaskLogs) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (l *memoryTaskLogs) statuses(name string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.Name == name {
			out = append(out, e.Status)
		}
	}
	return out
}

type stubScheduled struct {
	report *service.DuePostReport
	err    error
	batch  int
}

func (s *stubScheduled) PublishDuePosts(ctx context.Context, batchSize int) (*service.DuePostReport, error) {
	s.batch = batchSize
	return s.report, s.err
}

type stubDispatcher struct {
	results []*service.PublishResult
	err     error
}

func (s *stubDispatcher) PublishToAllPlatforms(ctx context.Context, postID int64) ([]*service.PublishResult, error) {
	return s.results, s.err
}

func (s *stubDispatcher) PublishToSocialMedia(ctx context.Context, postID, accountID int64) (*service.PublishResult, error) {
	return nil, errors.New("not used")
}

func newTestManager(backend *fakeBackend, services Services) (*Manager, *memoryTaskLogs) {
	logs := &memoryTaskLogs{}
	return NewManager(backend, services, logs, Config{DueBatchSize: 20}, nil), logs
}

func TestInitialize_RegistersEnabledJobs(t *testing.T) {
	backend := newFakeBackend()
	m, logs := newTestManager(backend, Services{})

	require.NoError(t, m.Initialize(context.Background()))

	assert.Len(t, backend.handlers, 9, "every job type gets a handler")
	var names []string
	for _, s := range backend.scheduled {
		names = append(names, s.jobType)
	}
	assert.ElementsMatch(t, []string{
		"posts:publish_due",
		"accounts:check_tokens",
		"system:health_check",
		"system:cleanup_logs",
		"approvals:edge_cases",
	}, names)

	for _, s := range backend.scheduled {
		if s.jobType == "posts:publish_due" {
			assert.JSONEq(t, `{"batch_size":20}`, string(s.payload))
			assert.Equal(t, 3, s.opts.Attempts)
		}
	}
	assert.Equal(t, []string{models.TaskStatusInfo}, logs.statuses(string(DailySync)))
	assert.Equal(t, []string{models.TaskStatusSuccess}, logs.statuses(managerLogName))
}

func TestInitialize_Idempotent(t *testing.T) {
	backend := newFakeBackend()
	m, _ := newTestManager(backend, Services{})

	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.Initialize(context.Background()))

	assert.Equal(t, 1, backend.started)
	assert.Len(t, backend.scheduled, 5)
}

func TestInitialize_BackendUnavailable(t *testing.T) {
	backend := newFakeBackend()
	backend.startErr = queue.ErrBackendUnavailable
	m, logs := newTestManager(backend, Services{})

	err := m.Initialize(context.Background())
	require.ErrorIs(t, err, queue.ErrBackendUnavailable)

	status := m.Status(context.Background())
	assert.False(t, status.Initialized)
	assert.False(t, status.BackendAvailable)
	assert.Empty(t, backend.scheduled)
	assert.Equal(t, []string{models.TaskStatusError}, logs.statuses(managerLogName))
}

func TestInitialize_RetryAfterBackendFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.startErr = queue.ErrBackendUnavailable
	m, _ := newTestManager(backend, Services{})

	require.ErrorIs(t, m.Initialize(context.Background()), queue.ErrBackendUnavailable)

	backend.startErr = nil
	require.NoError(t, m.Initialize(context.Background()))

	assert.True(t, m.Status(context.Background()).Initialized)
	assert.Len(t, backend.scheduled, 5)
	for jobType, n := range backend.handled {
		assert.Equal(t, 1, n, "handler for %s registered more than once", jobType)
	}
}

func TestTriggerJob(t *testing.T) {
	backend := newFakeBackend()
	m, _ := newTestManager(backend, Services{})

	_, err := m.TriggerJob(context.Background(), string(PublishDuePosts), nil)
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, m.Initialize(context.Background()))

	_, err = m.TriggerJob(context.Background(), "reindex_everything", nil)
	require.ErrorIs(t, err, ErrUnknownJob)

	_, err = m.TriggerJob(context.Background(), string(DailySync), nil)
	require.ErrorIs(t, err, ErrJobDisabled)

	_, err = m.TriggerJob(context.Background(), string(PublishPost), json.RawMessage(`{"post_id":`))
	require.ErrorIs(t, err, ErrInvalidPayload)

	resp, err := m.TriggerJob(context.Background(), string(PublishPost), json.RawMessage(`{"post_id":42}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.JobID, "manual-"))
	assert.Equal(t, QueuePublishing, resp.QueueName)
	assert.Equal(t, "posts:publish", resp.JobType)

	require.Len(t, backend.added, 1)
	assert.JSONEq(t, `{"post_id":42}`, string(backend.added[0].payload))

	_, err = m.TriggerJob(context.Background(), string(SystemHealthCheck), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(backend.added[1].payload))
}

func TestPauseAndResumeJob(t *testing.T) {
	backend := newFakeBackend()
	m, _ := newTestManager(backend, Services{})
	require.NoError(t, m.Initialize(context.Background()))

	affected, err := m.PauseJob(context.Background(), string(CleanupOldLogs))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{string(SystemHealthCheck), string(CleanupOldLogs)}, affected)
	assert.True(t, backend.paused[QueueMaintenance])

	_, err = m.ResumeJob(context.Background(), string(CleanupOldLogs))
	require.NoError(t, err)
	assert.False(t, backend.paused[QueueMaintenance])

	_, err = m.PauseJob(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestJobRunIsLogged(t *testing.T) {
	backend := newFakeBackend()
	scheduledSvc := &stubScheduled{report: &service.DuePostReport{Total: 3, Processed: 2, Skipped: 1, Published: 2}}
	m, logs := newTestManager(backend, Services{Scheduled: scheduledSvc})
	require.NoError(t, m.Initialize(context.Background()))

	require.NoError(t, backend.run(t, "posts:publish_due", []byte(`{"batch_size":7}`)))

	assert.Equal(t, 7, scheduledSvc.batch)
	assert.Equal(t, []string{models.TaskStatusInfo, models.TaskStatusStarted, models.TaskStatusSuccess}, logs.statuses(string(PublishDuePosts)))

	status := m.Status(context.Background())
	assert.True(t, status.Initialized)
	assert.Equal(t, "fake", status.Backend)
	assert.Equal(t, []transfer.QueueMetrics{{Queue: QueuePublishing, Waiting: 2}}, status.Queues)
	for _, job := range status.Jobs {
		if job.Name == string(PublishDuePosts) {
			assert.Equal(t, models.TaskStatusSuccess, job.LastStatus)
			assert.False(t, job.Running)
			assert.NotNil(t, job.LastRunAt)
			assert.True(t, job.Enabled)
		}
	}
}

func TestJobFailureIsLogged(t *testing.T) {
	backend := newFakeBackend()
	dbErr := errors.New("database unreachable")
	m, logs := newTestManager(backend, Services{Scheduled: &stubScheduled{err: dbErr}})
	require.NoError(t, m.Initialize(context.Background()))

	err := backend.run(t, "posts:publish_due", nil)
	require.ErrorIs(t, err, dbErr)
	assert.False(t, queue.IsSkipRetry(err), "infrastructure failures are retried")
	assert.Equal(t, []string{models.TaskStatusInfo, models.TaskStatusStarted, models.TaskStatusError}, logs.statuses(string(PublishDuePosts)))
}

func TestPublishPostContractErrorsSkipRetry(t *testing.T) {
	backend := newFakeBackend()
	dispatcher := &stubDispatcher{err: service.ErrPostNotFound}
	m, _ := newTestManager(backend, Services{Dispatcher: dispatcher})
	require.NoError(t, m.Initialize(context.Background()))

	assert.True(t, queue.IsSkipRetry(backend.run(t, "posts:publish", []byte(`{}`))))
	assert.True(t, queue.IsSkipRetry(backend.run(t, "posts:publish", []byte(`not json`))))
	assert.True(t, queue.IsSkipRetry(backend.run(t, "posts:publish", []byte(`{"post_id":9}`))))
}

func TestJobWithoutServiceSkipsRetry(t *testing.T) {
	backend := newFakeBackend()
	m, _ := newTestManager(backend, Services{})
	require.NoError(t, m.Initialize(context.Background()))

	err := backend.run(t, "analytics:daily_sync", nil)
	require.ErrorIs(t, err, ErrJobDisabled)
	assert.True(t, queue.IsSkipRetry(err))
}

func TestShutdown(t *testing.T) {
	backend := newFakeBackend()
	m, _ := newTestManager(backend, Services{})

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Zero(t, backend.shutdown, "nothing to stop before initialize")

	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 1, backend.shutdown)
	assert.False(t, m.Status(context.Background()).Initialized)
}
