package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// Services are the operations behind the catalog. A nil service leaves its jobs without a handler.
type Services struct {
	Scheduled  service.ScheduledPostService
	Dispatcher service.PostPublisherService
	Tokens     service.TokenService
	Health     service.HealthService
	Cleanup    service.LogCleanupService
	Sync       service.SyncService
	EdgeCases  service.EdgeCaseService
}

type outcome struct {
	status  string
	message string
}

type handlerFunc func(ctx context.Context, payload []byte) (outcome, error)

func (s Services) handlers() map[JobName]handlerFunc {
	h := map[JobName]handlerFunc{}
	if s.Scheduled != nil {
		h[PublishDuePosts] = s.publishDuePosts
	}
	if s.Dispatcher != nil {
		h[PublishPost] = s.publishPost
	}
	if s.Tokens != nil {
		h[CheckExpiredTokens] = s.checkExpiredTokens
	}
	if s.Health != nil {
		h[SystemHealthCheck] = s.healthCheck
	}
	if s.Cleanup != nil {
		h[CleanupOldLogs] = s.cleanupOldLogs
	}
	if s.Sync != nil {
		h[IncrementalSync] = s.sync
		h[DailySync] = s.sync
		h[CollectHistoricalData] = s.sync
	}
	if s.EdgeCases != nil {
		h[HandleEdgeCases] = s.handleEdgeCases
	}
	return h
}

// decode treats an empty payload as the zero value. Malformed payloads are never retried.
func decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return queue.SkipRetry(fmt.Errorf("decode payload: %w", err))
	}
	return nil
}

func (s Services) publishDuePosts(ctx context.Context, payload []byte) (outcome, error) {
	var p transfer.PublishDuePostsPayload
	if err := decode(payload, &p); err != nil {
		return outcome{}, err
	}

	report, err := s.Scheduled.PublishDuePosts(ctx, p.BatchSize)
	if err != nil {
		return outcome{}, err
	}
	return outcome{message: fmt.Sprintf("due=%d processed=%d skipped=%d published=%d failed=%d",
		report.Total, report.Processed, report.Skipped, report.Published, report.Failed)}, nil
}

func (s Services) publishPost(ctx context.Context, payload []byte) (outcome, error) {
	var p transfer.PublishPostPayload
	if err := decode(payload, &p); err != nil {
		return outcome{}, err
	}
	if p.PostID <= 0 {
		return outcome{}, queue.SkipRetry(errors.New("post_id is required"))
	}

	results, err := s.Dispatcher.PublishToAllPlatforms(ctx, p.PostID)
	if errors.Is(err, service.ErrPostNotFound) {
		return outcome{}, queue.SkipRetry(err)
	}
	if err != nil {
		return outcome{}, err
	}

	var published, failed int
	for _, r := range results {
		switch {
		case r.InProgress:
			return outcome{status: models.TaskStatusWarning, message: fmt.Sprintf("post %d already processing", p.PostID)}, nil
		case r.Success:
			published++
		default:
			failed++
		}
	}
	out := outcome{message: fmt.Sprintf("post %d: published=%d failed=%d", p.PostID, published, failed)}
	if failed > 0 {
		out.status = models.TaskStatusWarning
	}
	return out, nil
}

func (s Services) checkExpiredTokens(ctx context.Context, payload []byte) (outcome, error) {
	var p transfer.WindowPayload
	if err := decode(payload, &p); err != nil {
		return outcome{}, err
	}

	report, err := s.Tokens.CheckExpiredTokens(ctx, time.Duration(p.WindowHours)*time.Hour)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{message: fmt.Sprintf("checked=%d refreshed=%d expired=%d failed=%d",
		report.Checked, report.Refreshed, report.Expired, report.Failed)}
	if report.Expired > 0 || report.Failed > 0 {
		out.status = models.TaskStatusWarning
	}
	return out, nil
}

func (s Services) healthCheck(ctx context.Context, payload []byte) (outcome, error) {
	resp := s.Health.Check(ctx)
	summary, _ := json.Marshal(resp.Checks)

	switch resp.Status {
	case service.HealthUnhealthy:
		return outcome{}, fmt.Errorf("system unhealthy: %s", summary)
	case service.HealthDegraded:
		return outcome{status: models.TaskStatusWarning, message: string(summary)}, nil
	}
	return outcome{message: string(summary)}, nil
}

func (s Services) cleanupOldLogs(ctx context.Context, payload []byte) (outcome, error) {
	var p transfer.CleanupLogsPayload
	if err := decode(payload, &p); err != nil {
		return outcome{}, err
	}

	report, err := s.Cleanup.CleanupOldLogs(ctx, p.RetentionDays)
	if err != nil {
		return outcome{}, err
	}
	return outcome{message: fmt.Sprintf("cutoff=%s archived=%d deleted=%d",
		report.Cutoff.Format(time.RFC3339), report.Archived, report.Deleted)}, nil
}

func (s Services) sync(ctx context.Context, payload []byte) (outcome, error) {
	var p transfer.WindowPayload
	if err := decode(payload, &p); err != nil {
		return outcome{}, err
	}

	report, err := s.Sync.Sync(ctx, p.WindowHours)
	if err != nil {
		return outcome{}, err
	}
	return outcome{message: fmt.Sprintf("links=%d collected=%d unsupported=%d failed=%d",
		report.Links, report.Collected, report.Unsupported, report.Failed)}, nil
}

func (s Services) handleEdgeCases(ctx context.Context, payload []byte) (outcome, error) {
	reports, err := s.EdgeCases.HandleEdgeCases(ctx)
	if err != nil {
		return outcome{}, err
	}

	out := outcome{}
	total := 0
	for _, r := range reports {
		total += r.Count
		out.message += fmt.Sprintf("%s=%d ", r.Type, r.Count)
	}
	if len(reports) < service.EdgeCaseChecks {
		out.status = models.TaskStatusWarning
	}
	out.message = fmt.Sprintf("%sremediated=%d", out.message, total)
	return out, nil
}
