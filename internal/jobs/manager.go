package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrUnknownJob     = errors.New("unknown job")
	ErrNotInitialized = errors.New("job scheduler not initialized")
	ErrJobDisabled    = errors.New("job disabled")
	ErrInvalidPayload = errors.New("invalid job payload")
)

const managerLogName = "job_scheduler"

// Manager owns the job catalog on top of a queue backend. It is built once by the process
// entry point and passed to whatever needs to trigger or inspect jobs.
type Manager struct {
	backend  queue.Backend
	handlers map[JobName]handlerFunc
	taskLogs repository.TaskLogRepository
	cfg      Config
	catalog  []Job
	logger   *slog.Logger

	mu          sync.Mutex
	initialized bool
	registered  bool
	states      map[JobName]*jobState
}

type jobState struct {
	running    int
	lastRunAt  *time.Time
	lastStatus string
}

func NewManager(backend queue.Backend, services Services, taskLogs repository.TaskLogRepository, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := Catalog(cfg)
	states := make(map[JobName]*jobState, len(catalog))
	for _, job := range catalog {
		states[job.Name] = &jobState{}
	}

	return &Manager{
		backend:  backend,
		handlers: services.handlers(),
		taskLogs: taskLogs,
		cfg:      cfg,
		catalog:  catalog,
		logger:   logger.With("component", "job_scheduler"),
		states:   states,
	}
}

// Initialize registers handlers, starts the backend and schedules every enabled recurring job.
// Calling it again is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		m.logger.Warn("job scheduler already initialized")
		return nil
	}

	// Handlers survive a failed Start so a retry does not register them twice.
	if !m.registered {
		for _, job := range m.catalog {
			m.backend.Handle(job.JobType, m.wrap(job))
		}
		m.registered = true
	}

	if err := m.backend.Start(ctx); err != nil {
		m.logger.Error("queue backend unavailable", "backend", m.backend.Name(), "error", err)
		m.record(ctx, managerLogName, models.TaskStatusError, fmt.Sprintf("backend %s unavailable: %v", m.backend.Name(), err))
		return err
	}

	for _, job := range m.catalog {
		if !job.Recurring() {
			continue
		}
		if !m.cfg.enabled(job) {
			m.logger.Info("job disabled", "job", job.Name)
			m.record(ctx, string(job.Name), models.TaskStatusInfo, "disabled by configuration")
			continue
		}

		err := m.backend.ScheduleRecurring(job.Queue, job.JobType, job.DefaultPayload(), job.Cron, m.options(job))
		if err != nil {
			m.logger.Error("register job failed", "job", job.Name, "error", err)
			m.record(ctx, string(job.Name), models.TaskStatusError, fmt.Sprintf("registration failed: %v", err))
			_ = m.backend.Shutdown(ctx)
			return fmt.Errorf("register %s: %w", job.Name, err)
		}
		m.logger.Info("job registered", "job", job.Name, "queue", job.Queue, "cron", job.Cron)
		m.record(ctx, string(job.Name), models.TaskStatusInfo, fmt.Sprintf("registered on %s with schedule %q", job.Queue, job.Cron))
	}

	m.initialized = true
	m.record(ctx, managerLogName, models.TaskStatusSuccess, fmt.Sprintf("initialized with %s backend", m.backend.Name()))
	return nil
}

func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil
	}
	m.initialized = false

	err := m.backend.Shutdown(ctx)
	if err != nil {
		m.logger.Error("queue backend shutdown failed", "error", err)
	}
	m.record(ctx, managerLogName, models.TaskStatusInfo, "shut down")
	return err
}

func (m *Manager) Status(ctx context.Context) *transfer.SchedulerStatus {
	m.mu.Lock()
	initialized := m.initialized
	m.mu.Unlock()

	status := &transfer.SchedulerStatus{
		Initialized:      initialized,
		Backend:          m.backend.Name(),
		BackendAvailable: m.backend.Available(ctx),
	}

	metrics, err := m.backend.QueueMetrics(ctx)
	if err != nil {
		m.logger.Warn("queue metrics unavailable", "error", err)
	}
	status.Queues = metrics

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.catalog {
		state := m.states[job.Name]
		status.Jobs = append(status.Jobs, transfer.JobState{
			Name:       string(job.Name),
			Queue:      job.Queue,
			JobType:    job.JobType,
			Cron:       job.Cron,
			Enabled:    m.cfg.enabled(job),
			Running:    state.running > 0,
			LastRunAt:  state.lastRunAt,
			LastStatus: state.lastStatus,
		})
	}
	return status
}

// TriggerJob enqueues a one-off run of name. An empty payload uses the job's default.
func (m *Manager) TriggerJob(ctx context.Context, name string, payload json.RawMessage) (*transfer.TriggerJobResponse, error) {
	job, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if !m.isInitialized() {
		return nil, ErrNotInitialized
	}
	if !m.cfg.enabled(job) {
		return nil, fmt.Errorf("%w: %s", ErrJobDisabled, name)
	}

	body := []byte(payload)
	if len(body) == 0 {
		body = job.DefaultPayload()
	} else if !json.Valid(body) {
		return nil, fmt.Errorf("%w for %s", ErrInvalidPayload, name)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	opts := m.options(job)
	opts.JobID = "manual-" + id

	jobID, err := m.backend.AddJob(ctx, job.Queue, job.JobType, body, opts)
	if err != nil {
		m.logger.Error("trigger job failed", "job", name, "error", err)
		return nil, err
	}

	m.logger.Info("job triggered", "job", name, "job_id", jobID)
	m.record(ctx, name, models.TaskStatusInfo, fmt.Sprintf("manually triggered as %s", jobID))
	return &transfer.TriggerJobResponse{JobID: jobID, QueueName: job.Queue, JobType: job.JobType}, nil
}

// PauseJob pauses the job's queue and returns every job that shares it.
func (m *Manager) PauseJob(ctx context.Context, name string) ([]string, error) {
	return m.setPaused(ctx, name, true)
}

func (m *Manager) ResumeJob(ctx context.Context, name string) ([]string, error) {
	return m.setPaused(ctx, name, false)
}

func (m *Manager) setPaused(ctx context.Context, name string, paused bool) ([]string, error) {
	job, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if !m.isInitialized() {
		return nil, ErrNotInitialized
	}

	action := "resumed"
	if paused {
		action = "paused"
		err = m.backend.PauseQueue(ctx, job.Queue)
	} else {
		err = m.backend.ResumeQueue(ctx, job.Queue)
	}
	if err != nil {
		return nil, err
	}

	var affected []string
	for _, j := range m.catalog {
		if j.Queue == job.Queue {
			affected = append(affected, string(j.Name))
		}
	}
	m.logger.Info("queue "+action, "job", name, "queue", job.Queue, "affected", affected)
	m.record(ctx, name, models.TaskStatusInfo, fmt.Sprintf("queue %s %s", job.Queue, action))
	return affected, nil
}

func (m *Manager) lookup(name string) (Job, error) {
	for _, job := range m.catalog {
		if string(job.Name) == name {
			return job, nil
		}
	}
	return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (m *Manager) isInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

func (m *Manager) options(job Job) queue.JobOptions {
	return queue.JobOptions{
		Attempts:  job.Attempts,
		Backoff:   job.Backoff,
		Retention: m.cfg.JobRetention,
		Timeout:   job.Timeout,
	}
}

// wrap adds running state and STARTED/SUCCESS/ERROR task log entries around a job handler.
func (m *Manager) wrap(job Job) queue.Handler {
	return func(ctx context.Context, payload []byte) error {
		h, ok := m.handlers[job.Name]
		if !ok {
			return queue.SkipRetry(fmt.Errorf("%w: %s has no handler", ErrJobDisabled, job.Name))
		}

		logger := m.logger.With("job", job.Name)
		started := time.Now()
		m.setRunning(job.Name, started)
		m.record(ctx, string(job.Name), models.TaskStatusStarted, "started")
		logger.Info("job started")

		out, err := h(ctx, payload)
		elapsed := time.Since(started).Round(time.Millisecond)

		if err != nil {
			m.setDone(job.Name, models.TaskStatusError)
			m.record(ctx, string(job.Name), models.TaskStatusError, err.Error())
			logger.Error("job failed", "duration", elapsed, "error", err)
			return err
		}

		status := out.status
		if status == "" {
			status = models.TaskStatusSuccess
		}
		m.setDone(job.Name, status)
		m.record(ctx, string(job.Name), status, out.message)
		logger.Info("job finished", "status", status, "duration", elapsed, "result", out.message)
		return nil
	}
}

func (m *Manager) setRunning(name JobName, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.states[name]
	state.running++
	state.lastRunAt = &at
}

func (m *Manager) setDone(name JobName, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.states[name]
	state.running--
	state.lastStatus = status
}

// record appends to the task log. Failures are logged and otherwise ignored.
func (m *Manager) record(ctx context.Context, name, status, message string) {
	if m.taskLogs == nil {
		return
	}
	_, err := m.taskLogs.Create(context.WithoutCancel(ctx), &models.TaskLog{
		Name:      name,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Warn("write task log failed", "job", name, "status", status, "error", err)
	}
}
