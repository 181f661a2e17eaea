package jobs

import (
	"encoding/json"
	"time"

	"github.com/maheshrc27/postflow/internal/transfer"
)

type JobName string

const (
	PublishDuePosts       JobName = "publish_due_posts"
	PublishPost           JobName = "publish_post"
	CheckExpiredTokens    JobName = "check_expired_tokens"
	SystemHealthCheck     JobName = "system_health_check"
	CleanupOldLogs        JobName = "cleanup_old_logs"
	IncrementalSync       JobName = "incremental_sync"
	DailySync             JobName = "daily_sync"
	CollectHistoricalData JobName = "collect_historical_data"
	HandleEdgeCases       JobName = "handle_edge_cases"
)

const (
	QueuePublishing  = "publishing"
	QueueApprovals   = "approvals"
	QueueAccounts    = "accounts"
	QueueSync        = "sync"
	QueueMaintenance = "maintenance"
)

// QueuePriorities is the weight of each queue; higher runs first.
func QueuePriorities() map[string]int {
	return map[string]int{
		QueuePublishing:  6,
		QueueApprovals:   4,
		QueueAccounts:    3,
		QueueSync:        2,
		QueueMaintenance: 1,
	}
}

// Job is one entry of the fixed catalog. A job with an empty Cron is one-off only.
type Job struct {
	Name           JobName
	Queue          string
	JobType        string
	Cron           string
	Payload        any
	Attempts       int
	Backoff        time.Duration
	Timeout        time.Duration
	DefaultEnabled bool
}

func (j Job) Recurring() bool { return j.Cron != "" }

func (j Job) DefaultPayload() []byte {
	b, err := json.Marshal(j.Payload)
	if err != nil || string(b) == "null" {
		return []byte("{}")
	}
	return b
}

type Config struct {
	// Enabled overrides DefaultEnabled per job.
	Enabled map[JobName]bool
	// Cron overrides the default schedule per job.
	Cron             map[JobName]string
	DueBatchSize     int
	LogRetentionDays int
	JobRetention     time.Duration
}

func (c Config) enabled(j Job) bool {
	if v, ok := c.Enabled[j.Name]; ok {
		return v
	}
	return j.DefaultEnabled
}

// Catalog returns every job with config overrides applied, in a stable order.
func Catalog(cfg Config) []Job {
	jobs := []Job{
		{
			Name:           PublishDuePosts,
			Queue:          QueuePublishing,
			JobType:        "posts:publish_due",
			Cron:           "*/5 * * * *",
			Payload:        transfer.PublishDuePostsPayload{BatchSize: cfg.DueBatchSize},
			Attempts:       3,
			Backoff:        30 * time.Second,
			Timeout:        10 * time.Minute,
			DefaultEnabled: true,
		},
		{
			Name:           PublishPost,
			Queue:          QueuePublishing,
			JobType:        "posts:publish",
			Payload:        transfer.PublishPostPayload{},
			Attempts:       3,
			Backoff:        30 * time.Second,
			Timeout:        10 * time.Minute,
			DefaultEnabled: true,
		},
		{
			Name:           CheckExpiredTokens,
			Queue:          QueueAccounts,
			JobType:        "accounts:check_tokens",
			Cron:           "0 */4 * * *",
			Payload:        transfer.WindowPayload{WindowHours: 24},
			Attempts:       3,
			Backoff:        time.Minute,
			Timeout:        5 * time.Minute,
			DefaultEnabled: true,
		},
		{
			Name:           SystemHealthCheck,
			Queue:          QueueMaintenance,
			JobType:        "system:health_check",
			Cron:           "*/15 * * * *",
			Attempts:       1,
			Timeout:        time.Minute,
			DefaultEnabled: true,
		},
		{
			Name:           CleanupOldLogs,
			Queue:          QueueMaintenance,
			JobType:        "system:cleanup_logs",
			Cron:           "0 3 * * *",
			Payload:        transfer.CleanupLogsPayload{RetentionDays: cfg.LogRetentionDays},
			Attempts:       3,
			Backoff:        5 * time.Minute,
			Timeout:        10 * time.Minute,
			DefaultEnabled: true,
		},
		{
			Name:     IncrementalSync,
			Queue:    QueueSync,
			JobType:  "analytics:incremental_sync",
			Cron:     "0 * * * *",
			Payload:  transfer.WindowPayload{WindowHours: 24},
			Attempts: 3,
			Backoff:  time.Minute,
			Timeout:  15 * time.Minute,
		},
		{
			Name:     DailySync,
			Queue:    QueueSync,
			JobType:  "analytics:daily_sync",
			Cron:     "30 2 * * *",
			Payload:  transfer.WindowPayload{WindowHours: 720},
			Attempts: 3,
			Backoff:  5 * time.Minute,
			Timeout:  30 * time.Minute,
		},
		{
			Name:     CollectHistoricalData,
			Queue:    QueueSync,
			JobType:  "analytics:historical",
			Cron:     "0 4 * * 0",
			Payload:  transfer.WindowPayload{WindowHours: 0},
			Attempts: 3,
			Backoff:  10 * time.Minute,
			Timeout:  time.Hour,
		},
		{
			Name:           HandleEdgeCases,
			Queue:          QueueApprovals,
			JobType:        "approvals:edge_cases",
			Cron:           "0 * * * *",
			Attempts:       3,
			Backoff:        time.Minute,
			Timeout:        10 * time.Minute,
			DefaultEnabled: true,
		},
	}

	for i := range jobs {
		if expr, ok := cfg.Cron[jobs[i].Name]; ok && expr != "" && jobs[i].Recurring() {
			jobs[i].Cron = expr
		}
	}
	return jobs
}
