package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/repository"
	"golang.org/x/sync/errgroup"
)

const syncConcurrency = 5

type SyncReport struct {
	Since       time.Time `json:"since"`
	Links       int       `json:"links"`
	Collected   int       `json:"collected"`
	Unsupported int       `json:"unsupported"`
	Failed      int       `json:"failed"`
}

type SyncService interface {
	// Sync collects metrics for links published within the last windowHours; 0 means all time.
	Sync(ctx context.Context, windowHours int) (*SyncReport, error)
}

type syncService struct {
	links    repository.PostAccountRepository
	accounts repository.SocialAccountRepository
	metrics  repository.PostMetricsRepository
	registry *publisher.Registry
	logger   *slog.Logger
	now      func() time.Time
}

func NewSyncService(
	links repository.PostAccountRepository,
	accounts repository.SocialAccountRepository,
	metrics repository.PostMetricsRepository,
	registry *publisher.Registry,
	logger *slog.Logger) SyncService {
	return &syncService{
		links:    links,
		accounts: accounts,
		metrics:  metrics,
		registry: registry,
		logger:   resolveLogger(logger),
		now:      time.Now,
	}
}

func (s *syncService) Sync(ctx context.Context, windowHours int) (*SyncReport, error) {
	now := s.now()
	var since time.Time
	if windowHours > 0 {
		since = now.Add(-time.Duration(windowHours) * time.Hour)
	}

	links, err := s.links.ListPublishedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list published links: %w", err)
	}

	report := &SyncReport{Since: since, Links: len(links)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(syncConcurrency)

	for _, link := range links {
		link := link
		g.Go(func() error {
			outcome := s.collect(ctx, link, now)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case syncCollected:
				report.Collected++
			case syncUnsupported:
				report.Unsupported++
			default:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("metrics synced",
		"window_hours", windowHours,
		"links", report.Links,
		"collected", report.Collected,
		"failed", report.Failed,
	)
	return report, nil
}

type syncOutcome int

const (
	syncCollected syncOutcome = iota
	syncUnsupported
	syncFailed
)

func (s *syncService) collect(ctx context.Context, link *models.PostAccountLink, now time.Time) syncOutcome {
	logger := s.logger.With("post_id", link.PostID, "account_id", link.AccountID)

	account, err := s.accounts.GetByID(ctx, link.AccountID)
	if err != nil || account == nil {
		logger.Warn("load account for metrics failed", "error", err)
		return syncFailed
	}

	pub, err := s.registry.Get(account.Platform)
	if err != nil {
		return syncUnsupported
	}
	fetcher, ok := pub.(publisher.InsightsFetcher)
	if !ok {
		return syncUnsupported
	}

	m, err := fetcher.FetchMetrics(ctx, account, link.PlatformPostID)
	if err != nil {
		logger.Warn("fetch metrics failed", "platform", account.Platform, "error", err)
		return syncFailed
	}

	err = s.metrics.Upsert(ctx, &models.PostMetrics{
		PostID:      link.PostID,
		AccountID:   link.AccountID,
		Views:       m.Views,
		Likes:       m.Likes,
		Comments:    m.Comments,
		Shares:      m.Shares,
		CollectedAt: now,
	})
	if err != nil {
		logger.Error("store metrics failed", "error", err)
		return syncFailed
	}
	return syncCollected
}
