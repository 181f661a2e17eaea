package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const dueDispatchConcurrency = 5

// DuePostReport summarises one publish_due_posts run. Published and Failed count account links.
type DuePostReport struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

type ScheduledPostService interface {
	PublishDuePosts(ctx context.Context, batchSize int) (*DuePostReport, error)
}

type scheduledPostService struct {
	selector   DuePostSelector
	dispatcher PostPublisherService
	logger     *slog.Logger
}

func NewScheduledPostService(selector DuePostSelector, dispatcher PostPublisherService, logger *slog.Logger) ScheduledPostService {
	return &scheduledPostService{
		selector:   selector,
		dispatcher: dispatcher,
		logger:     resolveLogger(logger),
	}
}

// PublishDuePosts dispatches one batch of eligible due posts. Every post is attempted; the first
// infrastructure error is returned after the whole batch settles so the job can be retried.
func (s *scheduledPostService) PublishDuePosts(ctx context.Context, batchSize int) (*DuePostReport, error) {
	selection, err := s.selector.SelectDuePosts(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	report := &DuePostReport{
		Total:     selection.Total,
		Processed: len(selection.Eligible),
		Skipped:   len(selection.Skipped),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(dueDispatchConcurrency)

	for _, post := range selection.Eligible {
		postID := post.ID
		g.Go(func() error {
			results, err := s.dispatcher.PublishToAllPlatforms(ctx, postID)
			if err != nil {
				s.logger.Error("dispatch due post failed", "post_id", postID, "error", err)
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				switch {
				case r.InProgress || r.AlreadyPublished:
				case r.Success:
					report.Published++
				default:
					report.Failed++
				}
			}
			return nil
		})
	}
	err = g.Wait()

	s.logger.Info("due posts processed",
		"total", report.Total,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"published", report.Published,
		"failed", report.Failed,
	)
	return report, err
}
