package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

const (
	DefaultDueBatchSize  = 50
	SkipAwaitingApproval = "awaiting approval"
)

type SkippedPost struct {
	PostID int64  `json:"post_id"`
	Reason string `json:"reason"`
}

// DueSelection is one bounded batch of due posts. Total counts every due post, not just the batch.
type DueSelection struct {
	Total    int
	Eligible []*models.Post
	Skipped  []SkippedPost
}

// DuePostSelector only reads; it never changes post or approval state.
type DuePostSelector interface {
	SelectDuePosts(ctx context.Context, batchSize int) (*DueSelection, error)
}

type duePostSelector struct {
	posts     repository.PostRepository
	approvals repository.ApprovalRepository
	logger    *slog.Logger
	now       func() time.Time
}

func NewDuePostSelector(posts repository.PostRepository, approvals repository.ApprovalRepository, logger *slog.Logger) DuePostSelector {
	return &duePostSelector{
		posts:     posts,
		approvals: approvals,
		logger:    resolveLogger(logger),
		now:       time.Now,
	}
}

func (s *duePostSelector) SelectDuePosts(ctx context.Context, batchSize int) (*DueSelection, error) {
	if batchSize <= 0 {
		batchSize = DefaultDueBatchSize
	}
	now := s.now()

	total, err := s.posts.CountDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("count due posts: %w", err)
	}

	batch, err := s.posts.ListDue(ctx, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("list due posts: %w", err)
	}

	selection := &DueSelection{Total: total}
	for _, post := range batch {
		approved, err := s.approvalSatisfied(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		if !approved {
			s.logger.Info("due post skipped", "post_id", post.ID, "reason", SkipAwaitingApproval)
			selection.Skipped = append(selection.Skipped, SkippedPost{PostID: post.ID, Reason: SkipAwaitingApproval})
			continue
		}
		selection.Eligible = append(selection.Eligible, post)
	}

	return selection, nil
}

// approvalSatisfied is true when the post has no approval workflow or at least one approved instance.
func (s *duePostSelector) approvalSatisfied(ctx context.Context, postID int64) (bool, error) {
	instances, err := s.approvals.ListInstancesByPostID(ctx, postID)
	if err != nil {
		return false, fmt.Errorf("load approvals for post %d: %w", postID, err)
	}
	if len(instances) == 0 {
		return true, nil
	}
	for _, instance := range instances {
		if instance.Status == models.ApprovalStatusApproved {
			return true, nil
		}
	}
	return false, nil
}
