package transfer

import "time"

// Job payloads. Zero values fall back to the job's defaults.

type PublishDuePostsPayload struct {
	BatchSize int `json:"batch_size"`
}

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}

type WindowPayload struct {
	WindowHours int `json:"window_hours"`
}

type CleanupLogsPayload struct {
	RetentionDays int `json:"retention_days"`
}

type TriggerJobResponse struct {
	JobID     string `json:"job_id"`
	QueueName string `json:"queue_name"`
	JobType   string `json:"job_type"`
}

type QueueMetrics struct {
	Queue     string `json:"queue"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Delayed   int    `json:"delayed"`
	Paused    bool   `json:"paused"`
}

type JobState struct {
	Name       string     `json:"name"`
	Queue      string     `json:"queue"`
	JobType    string     `json:"job_type"`
	Cron       string     `json:"cron,omitempty"`
	Enabled    bool       `json:"enabled"`
	Running    bool       `json:"running"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
}

type SchedulerStatus struct {
	Initialized      bool           `json:"initialized"`
	Backend          string         `json:"backend"`
	BackendAvailable bool           `json:"backend_available"`
	Queues           []QueueMetrics `json:"queues"`
	Jobs             []JobState     `json:"jobs"`
}

type PublishResultResponse struct {
	Platform         string `json:"platform"`
	AccountID        int64  `json:"account_id"`
	Success          bool   `json:"success"`
	PlatformPostID   string `json:"platform_post_id,omitempty"`
	Error            string `json:"error,omitempty"`
	Skipped          bool   `json:"skipped,omitempty"`
	AlreadyPublished bool   `json:"already_published,omitempty"`
}

type PublishPostResponse struct {
	PostID  int64                   `json:"post_id"`
	Results []PublishResultResponse `json:"results"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}
