package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/repository"
)

const maxParallelPublishes = 10

// PublishResult is the outcome of one (post, account) attempt.
type PublishResult struct {
	PostID         int64           `json:"post_id"`
	AccountID      int64           `json:"account_id"`
	Platform       models.Platform `json:"platform,omitempty"`
	Success        bool            `json:"success"`
	PlatformPostID string          `json:"platform_post_id,omitempty"`
	Error          string          `json:"error,omitempty"`
	Retryable      bool            `json:"retryable,omitempty"`
	// AlreadyPublished marks a replay of a previously recorded success.
	AlreadyPublished bool `json:"already_published,omitempty"`
	// InProgress means another attempt holds the lock; nothing was done.
	InProgress bool `json:"in_progress,omitempty"`
	// Skipped marks a precondition failure such as an expired credential.
	Skipped bool `json:"skipped,omitempty"`
}

type PostPublisherService interface {
	PublishToAllPlatforms(ctx context.Context, postID int64) ([]*PublishResult, error)
	PublishToSocialMedia(ctx context.Context, postID, accountID int64) (*PublishResult, error)
}

type postPublisherService struct {
	posts    repository.PostRepository
	links    repository.PostAccountRepository
	media    repository.PostMediaRepository
	accounts repository.SocialAccountRepository
	registry *publisher.Registry
	guard    *Guard
	logger   *slog.Logger
	now      func() time.Time

	aggregateMu sync.Mutex
}

func NewPostPublisherService(
	posts repository.PostRepository,
	links repository.PostAccountRepository,
	media repository.PostMediaRepository,
	accounts repository.SocialAccountRepository,
	registry *publisher.Registry,
	guard *Guard,
	logger *slog.Logger) PostPublisherService {
	return &postPublisherService{
		posts:    posts,
		links:    links,
		media:    media,
		accounts: accounts,
		registry: registry,
		guard:    guard,
		logger:   resolveLogger(logger),
		now:      time.Now,
	}
}

// PublishToAllPlatforms publishes the post to every linked account that has not been published
// yet. Per-account failures are reported in the results; only infrastructure failures are
// returned as an error.
func (s *postPublisherService) PublishToAllPlatforms(ctx context.Context, postID int64) ([]*PublishResult, error) {
	release, ok := s.guard.TryAcquire(PostKey(postID))
	if !ok {
		s.logger.Info("post already processing", "post_id", postID)
		return []*PublishResult{{PostID: postID, InProgress: true, Error: ErrAlreadyProcessing.Error()}}, nil
	}
	defer release()

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil {
		return nil, fmt.Errorf("%w: %d", ErrPostNotFound, postID)
	}

	links, err := s.links.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load links for post %d: %w", postID, err)
	}
	if len(links) == 0 {
		// Nothing can ever publish it, so take it out of the due set.
		s.logger.Warn("post has no linked accounts, marking failed", "post_id", postID)
		if post.Status != models.PostStatusFailed {
			if err := s.posts.UpdatePostStatus(context.WithoutCancel(ctx), models.PostStatusFailed, postID); err != nil {
				return nil, fmt.Errorf("mark linkless post %d failed: %w", postID, err)
			}
		}
		return []*PublishResult{}, nil
	}

	results := make([]*PublishResult, 0, len(links))
	var pending []*models.PostAccountLink
	for _, link := range links {
		if link.Status == models.LinkStatusPublished {
			results = append(results, replayResult(link))
			continue
		}
		pending = append(pending, link)
	}
	if len(pending) == 0 {
		s.logger.Info("post already published on all accounts", "post_id", postID)
		return results, nil
	}

	content, err := s.content(ctx, post)
	if err != nil {
		return nil, err
	}

	attempts := make([]*PublishResult, len(pending))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, maxParallelPublishes)

	for i, link := range pending {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, accountID int64) {
			defer wg.Done()
			defer func() { <-semaphore }()
			attempts[i] = s.publishLink(ctx, post.ID, accountID, content)
		}(i, link.AccountID)
	}
	wg.Wait()

	return append(results, attempts...), nil
}

func (s *postPublisherService) PublishToSocialMedia(ctx context.Context, postID, accountID int64) (*PublishResult, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil {
		return nil, fmt.Errorf("%w: %d", ErrPostNotFound, postID)
	}

	content, err := s.content(ctx, post)
	if err != nil {
		return nil, err
	}
	return s.publishLink(ctx, postID, accountID, content), nil
}

func (s *postPublisherService) content(ctx context.Context, post *models.Post) (publisher.Content, error) {
	media, err := s.media.ListByPostID(ctx, post.ID)
	if err != nil {
		return publisher.Content{}, fmt.Errorf("load media for post %d: %w", post.ID, err)
	}
	return publisher.Content{
		Caption: post.Caption,
		Title:   post.Title,
		Media:   publisher.MediaRefs(media),
	}, nil
}

// publishLink runs one attempt under the pair lock. It never panics and always returns a result.
func (s *postPublisherService) publishLink(ctx context.Context, postID, accountID int64, content publisher.Content) (result *PublishResult) {
	result = &PublishResult{PostID: postID, AccountID: accountID}
	logger := s.logger.With("post_id", postID, "account_id", accountID)

	release, ok := s.guard.TryAcquire(PairKey(postID, accountID))
	if !ok {
		logger.Info("account attempt already processing")
		result.InProgress = true
		result.Error = ErrAlreadyProcessing.Error()
		return result
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("publisher panicked", "panic", r)
			result.Success = false
			result.PlatformPostID = ""
			result.Error = fmt.Sprintf("publisher panic: %v", r)
			s.markFailed(ctx, logger, postID, accountID, result.Error)
			s.refreshAggregate(ctx, postID)
		}
	}()

	link, err := s.links.GetByID(ctx, postID, accountID)
	if err != nil {
		logger.Error("load link failed", "error", err)
		result.Error = err.Error()
		return result
	}
	if link == nil {
		result.Error = ErrLinkNotFound.Error()
		return result
	}
	if link.Status == models.LinkStatusPublished {
		return replayResult(link)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		logger.Error("load account failed", "error", err)
		result.Error = err.Error()
		return result
	}
	if account == nil {
		s.fail(ctx, logger, result, ErrAccountNotFound)
		return result
	}
	result.Platform = account.Platform
	logger = logger.With("platform", account.Platform)

	if account.Expired(s.now()) {
		result.Skipped = true
		msg := fmt.Sprintf("%s: credentials expired at %s", publisher.ErrTokenExpired, account.TokenExpiresAt.Format(time.RFC3339))
		logger.Info("skipping publish, credentials expired")
		result.Error = msg
		s.markFailed(ctx, logger, postID, accountID, msg)
		s.refreshAggregate(ctx, postID)
		return result
	}

	pub, err := s.registry.Get(account.Platform)
	if err != nil {
		s.fail(ctx, logger, result, err)
		return result
	}

	platformPostID, err := pub.Publish(ctx, account, content)
	if err == nil && platformPostID == "" {
		err = errors.New("platform returned an empty post id")
	}
	if err != nil {
		result.Retryable = publisher.Retryable(err)
		s.fail(ctx, logger, result, err)
		return result
	}

	publishedAt := s.now()
	if err := s.links.MarkPublished(ctx, postID, accountID, platformPostID, publishedAt); err != nil {
		// The post is live on the platform; a lost write means a duplicate on the next run.
		logger.Error("persist published link failed, retrying", "platform_post_id", platformPostID, "error", err)
		if err := s.links.MarkPublished(context.WithoutCancel(ctx), postID, accountID, platformPostID, publishedAt); err != nil {
			logger.Error("persist published link failed", "platform_post_id", platformPostID, "error", err)
			result.Error = fmt.Sprintf("published as %s but not recorded: %v", platformPostID, err)
		}
	}

	logger.Info("published", "platform_post_id", platformPostID)
	result.Success = true
	result.PlatformPostID = platformPostID
	s.refreshAggregate(ctx, postID)
	return result
}

func (s *postPublisherService) fail(ctx context.Context, logger *slog.Logger, result *PublishResult, err error) {
	logger.Warn("publish failed", "error", err, "retryable", result.Retryable)
	result.Error = err.Error()
	s.markFailed(ctx, logger, result.PostID, result.AccountID, result.Error)
	s.refreshAggregate(ctx, result.PostID)
}

func (s *postPublisherService) markFailed(ctx context.Context, logger *slog.Logger, postID, accountID int64, msg string) {
	if err := s.links.MarkFailed(context.WithoutCancel(ctx), postID, accountID, msg); err != nil {
		logger.Error("persist failed link failed", "error", err)
	}
}

// refreshAggregate derives the post status from its links once every link is terminal:
// all published -> published, all failed -> failed, mixed -> partially_published.
func (s *postPublisherService) refreshAggregate(ctx context.Context, postID int64) {
	s.aggregateMu.Lock()
	defer s.aggregateMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	links, err := s.links.ListByPostID(ctx, postID)
	if err != nil {
		s.logger.Error("load links for aggregate status failed", "post_id", postID, "error", err)
		return
	}

	status := AggregateStatus(links)
	if status == "" {
		return
	}

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil || post == nil {
		s.logger.Error("load post for aggregate status failed", "post_id", postID, "error", err)
		return
	}
	if post.Status == status {
		return
	}

	if status == models.PostStatusFailed {
		err = s.posts.UpdatePostStatus(ctx, status, postID)
	} else {
		err = s.posts.SetPublished(ctx, postID, status, s.now())
	}
	if err != nil {
		s.logger.Error("update post status failed", "post_id", postID, "status", status, "error", err)
		return
	}
	s.logger.Info("post status updated", "post_id", postID, "status", status)
}

// AggregateStatus returns "" while any link is still pending.
func AggregateStatus(links []*models.PostAccountLink) string {
	if len(links) == 0 {
		return ""
	}

	var published, failed int
	for _, link := range links {
		switch link.Status {
		case models.LinkStatusPublished:
			published++
		case models.LinkStatusFailed:
			failed++
		default:
			return ""
		}
	}

	switch {
	case failed == 0:
		return models.PostStatusPublished
	case published == 0:
		return models.PostStatusFailed
	}
	return models.PostStatusPartiallyPublished
}

func replayResult(link *models.PostAccountLink) *PublishResult {
	return &PublishResult{
		PostID:           link.PostID,
		AccountID:        link.AccountID,
		Success:          true,
		PlatformPostID:   link.PlatformPostID,
		AlreadyPublished: true,
	}
}
