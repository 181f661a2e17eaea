package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"golang.org/x/sync/errgroup"
)

const (
	EdgeExpiredWhileApproving = "expired_while_approving"
	EdgeStuckApproval         = "stuck_approval"
	EdgeMissingApprover       = "missing_approver"
	EdgeApprovedButOverdue    = "approved_but_overdue"
	EdgeInvalidCredentials    = "invalid_credentials"

	EdgeCaseChecks = 5
)

const (
	ActionUrgentReminder = "urgent_reminder_sent"
	ActionRescheduled    = "auto_rescheduled"
	ActionMarkedExpired  = "marked_expired"
	ActionEscalated      = "escalated"
	ActionReassigned     = "reassigned"
	ActionAutoPublished  = "auto_published"
	ActionReconfirmation = "reconfirmation_requested"
	ActionAuthorNotified = "author_notified"
)

const (
	urgentReminderWindow = 2 * time.Hour
	rescheduleWindow     = 24 * time.Hour
	rescheduleDelay      = 2 * time.Hour
	stuckApprovalAge     = 48 * time.Hour
	autoPublishWindow    = 6 * time.Hour
	renotifyInterval     = 24 * time.Hour
)

type RemediatedItem struct {
	PostID       int64     `json:"post_id,omitempty"`
	InstanceID   int64     `json:"instance_id,omitempty"`
	AssignmentID int64     `json:"assignment_id,omitempty"`
	AccountID    int64     `json:"account_id,omitempty"`
	Action       string    `json:"action"`
	NewSchedule  time.Time `json:"new_schedule,omitempty"`
}

type EdgeCaseReport struct {
	Type  string            `json:"type"`
	Count int               `json:"count"`
	Items []*RemediatedItem `json:"items"`
}

func (r *EdgeCaseReport) add(item *RemediatedItem) {
	r.Items = append(r.Items, item)
	r.Count = len(r.Items)
}

type EdgeCaseService interface {
	HandleEdgeCases(ctx context.Context) ([]*EdgeCaseReport, error)
}

type edgeCaseService struct {
	posts      repository.PostRepository
	approvals  repository.ApprovalRepository
	users      repository.UserRepository
	dispatcher PostPublisherService
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewEdgeCaseService(
	posts repository.PostRepository,
	approvals repository.ApprovalRepository,
	users repository.UserRepository,
	dispatcher PostPublisherService,
	notifier Notifier,
	logger *slog.Logger) EdgeCaseService {
	return &edgeCaseService{
		posts:      posts,
		approvals:  approvals,
		users:      users,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     resolveLogger(logger),
		now:        time.Now,
	}
}

// HandleEdgeCases runs every check independently. Reports of failed checks are dropped; an
// error is returned only when no check succeeded.
func (s *edgeCaseService) HandleEdgeCases(ctx context.Context) ([]*EdgeCaseReport, error) {
	checks := []struct {
		name string
		run  func(context.Context, time.Time) (*EdgeCaseReport, error)
	}{
		{EdgeExpiredWhileApproving, s.expiredWhileApproving},
		{EdgeStuckApproval, s.stuckApprovals},
		{EdgeMissingApprover, s.missingApprovers},
		{EdgeApprovedButOverdue, s.approvedButOverdue},
		{EdgeInvalidCredentials, s.invalidCredentials},
	}

	now := s.now()
	reports := make([]*EdgeCaseReport, len(checks))
	errs := make([]error, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			report, err := check.run(ctx, now)
			if err != nil {
				s.logger.Error("edge case check failed", "check", check.name, "error", err)
				errs[i] = fmt.Errorf("%s: %w", check.name, err)
				return nil
			}
			if report.Count > 0 {
				s.logger.Info("edge cases remediated", "check", check.name, "count", report.Count)
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	var settled []*EdgeCaseReport
	for _, r := range reports {
		if r != nil {
			settled = append(settled, r)
		}
	}
	if len(settled) == 0 {
		return nil, errors.Join(errs...)
	}
	return settled, nil
}

func (s *edgeCaseService) expiredWhileApproving(ctx context.Context, now time.Time) (*EdgeCaseReport, error) {
	overdue, err := s.posts.ListOverdueByApproval(ctx, now, models.ApprovalStatusInProgress)
	if err != nil {
		return nil, err
	}

	report := &EdgeCaseReport{Type: EdgeExpiredWhileApproving}
	for _, oa := range overdue {
		post, instance := oa.Post, oa.Instance
		late := now.Sub(post.ScheduledTime)
		logger := s.logger.With("post_id", post.ID, "instance_id", instance.ID, "overdue", late.String())

		switch {
		case late <= urgentReminderWindow:
			assignments, err := s.approvals.ListPendingAssignments(ctx, instance.ID)
			if err != nil {
				logger.Error("load pending approvers failed", "error", err)
				continue
			}
			for _, a := range assignments {
				s.notifier.Notify(ctx, &models.Notification{
					UserID:  a.AssignedTo,
					Kind:    models.NotificationUrgentReminder,
					Subject: "Approval needed now",
					Body:    fmt.Sprintf("Post %d was scheduled for %s and is still waiting for your approval.", post.ID, post.ScheduledTime.Format(time.RFC1123)),
					PostID:  postRef(post.ID),
				})
			}
			report.add(&RemediatedItem{PostID: post.ID, InstanceID: instance.ID, Action: ActionUrgentReminder})

		case late <= rescheduleWindow:
			next := now.Add(rescheduleDelay)
			if err := s.posts.Reschedule(ctx, post.ID, next); err != nil {
				logger.Error("reschedule post failed", "error", err)
				continue
			}
			s.notifier.Notify(ctx, &models.Notification{
				UserID:  post.UserID,
				Kind:    models.NotificationRescheduled,
				Subject: "Post rescheduled",
				Body:    fmt.Sprintf("Post %d missed its slot while awaiting approval and was moved to %s.", post.ID, next.Format(time.RFC1123)),
				PostID:  postRef(post.ID),
			})
			report.add(&RemediatedItem{PostID: post.ID, InstanceID: instance.ID, Action: ActionRescheduled, NewSchedule: next})

		default:
			if err := s.posts.UpdatePostStatus(ctx, models.PostStatusFailed, post.ID); err != nil {
				logger.Error("mark post failed", "error", err)
				continue
			}
			if err := s.approvals.UpdateInstanceStatus(ctx, instance.ID, models.ApprovalStatusRejected); err != nil {
				logger.Error("reject approval failed", "error", err)
				continue
			}
			s.notifier.Notify(ctx, &models.Notification{
				UserID:  post.UserID,
				Kind:    models.NotificationPostExpired,
				Subject: "Post expired",
				Body:    fmt.Sprintf("Post %d was not approved within a day of its scheduled time and has been marked as failed.", post.ID),
				PostID:  postRef(post.ID),
			})
			report.add(&RemediatedItem{PostID: post.ID, InstanceID: instance.ID, Action: ActionMarkedExpired})
		}
	}
	return report, nil
}

func (s *edgeCaseService) stuckApprovals(ctx context.Context, now time.Time) (*EdgeCaseReport, error) {
	stuck, err := s.approvals.ListStuckInstances(ctx, now.Add(-stuckApprovalAge))
	if err != nil {
		return nil, err
	}

	report := &EdgeCaseReport{Type: EdgeStuckApproval}
	for _, instance := range stuck {
		logger := s.logger.With("instance_id", instance.ID, "team_id", instance.TeamID)
		approver, err := s.teamApprover(ctx, instance.TeamID)
		if err != nil {
			logger.Error("load team approvers failed", "error", err)
			continue
		}
		if approver == nil {
			logger.Warn("no owner or manager to escalate to")
			continue
		}

		id, err := s.approvals.CreateAssignment(ctx, &models.ApprovalAssignment{
			InstanceID:   instance.ID,
			AssignedTo:   approver.UserID,
			Status:       models.ApprovalStatusPending,
			IsEscalation: true,
		})
		if err != nil {
			logger.Error("create escalation failed", "error", err)
			continue
		}
		s.notifier.Notify(ctx, &models.Notification{
			UserID:  approver.UserID,
			Kind:    models.NotificationEscalation,
			Subject: "Approval escalated to you",
			Body:    fmt.Sprintf("Approval for post %d has had no response for two days.", instance.PostID),
			PostID:  postRef(instance.PostID),
		})
		report.add(&RemediatedItem{PostID: instance.PostID, InstanceID: instance.ID, AssignmentID: id, Action: ActionEscalated})
	}
	return report, nil
}

func (s *edgeCaseService) missingApprovers(ctx context.Context, now time.Time) (*EdgeCaseReport, error) {
	orphaned, err := s.approvals.ListOrphanedAssignments(ctx)
	if err != nil {
		return nil, err
	}

	report := &EdgeCaseReport{Type: EdgeMissingApprover}
	for _, a := range orphaned {
		logger := s.logger.With("assignment_id", a.ID, "instance_id", a.InstanceID)
		instance, err := s.approvals.GetInstanceByID(ctx, a.InstanceID)
		if err != nil || instance == nil {
			logger.Error("load approval instance failed", "error", err)
			continue
		}
		approver, err := s.teamApprover(ctx, instance.TeamID)
		if err != nil {
			logger.Error("load team approvers failed", "error", err)
			continue
		}
		if approver == nil {
			logger.Warn("no owner or manager to reassign to", "team_id", instance.TeamID)
			continue
		}

		if err := s.approvals.ReassignAssignment(ctx, a.ID, approver.UserID); err != nil {
			logger.Error("reassign approval failed", "error", err)
			continue
		}
		s.notifier.Notify(ctx, &models.Notification{
			UserID:  approver.UserID,
			Kind:    models.NotificationReassigned,
			Subject: "Approval reassigned to you",
			Body:    fmt.Sprintf("The original approver for post %d is no longer available.", instance.PostID),
			PostID:  postRef(instance.PostID),
		})
		report.add(&RemediatedItem{PostID: instance.PostID, InstanceID: instance.ID, AssignmentID: a.ID, Action: ActionReassigned})
	}
	return report, nil
}

func (s *edgeCaseService) approvedButOverdue(ctx context.Context, now time.Time) (*EdgeCaseReport, error) {
	overdue, err := s.posts.ListOverdueByApproval(ctx, now, models.ApprovalStatusApproved)
	if err != nil {
		return nil, err
	}

	report := &EdgeCaseReport{Type: EdgeApprovedButOverdue}
	for _, oa := range overdue {
		post := oa.Post
		late := now.Sub(post.ScheduledTime)

		if late <= autoPublishWindow {
			if _, err := s.dispatcher.PublishToAllPlatforms(ctx, post.ID); err != nil {
				s.logger.Error("auto publish failed", "post_id", post.ID, "error", err)
				continue
			}
			report.add(&RemediatedItem{PostID: post.ID, InstanceID: oa.Instance.ID, Action: ActionAutoPublished})
			continue
		}

		sent := s.notifier.NotifyOnce(ctx, &models.Notification{
			UserID:  post.UserID,
			Kind:    models.NotificationReconfirmation,
			Subject: "Confirm your approved post",
			Body:    fmt.Sprintf("Post %d was approved but missed its slot by %s. Reschedule it to publish.", post.ID, late.Round(time.Minute)),
			PostID:  postRef(post.ID),
		}, now.Add(-renotifyInterval))
		if !sent {
			continue
		}
		report.add(&RemediatedItem{PostID: post.ID, InstanceID: oa.Instance.ID, Action: ActionReconfirmation})
	}
	return report, nil
}

// invalidCredentials sends one notification per post listing every expired account it targets.
// Authors are reminded at most once per renotifyInterval.
func (s *edgeCaseService) invalidCredentials(ctx context.Context, now time.Time) (*EdgeCaseReport, error) {
	rows, err := s.posts.ListPendingWithExpiredAccounts(ctx, now)
	if err != nil {
		return nil, err
	}

	var order []int64
	byPost := map[int64][]*models.PostWithAccount{}
	for _, row := range rows {
		if _, ok := byPost[row.Post.ID]; !ok {
			order = append(order, row.Post.ID)
		}
		byPost[row.Post.ID] = append(byPost[row.Post.ID], row)
	}

	report := &EdgeCaseReport{Type: EdgeInvalidCredentials}
	for _, postID := range order {
		group := byPost[postID]
		accounts := make([]string, 0, len(group))
		for _, row := range group {
			accounts = append(accounts, fmt.Sprintf("%s (%s)", row.Account.AccountName, row.Account.Platform))
		}

		sent := s.notifier.NotifyOnce(ctx, &models.Notification{
			UserID:  group[0].Post.UserID,
			Kind:    models.NotificationAccountExpired,
			Subject: "Reconnect your account",
			Body: fmt.Sprintf("Post %d cannot be published to %s until the accounts are reconnected.",
				postID, strings.Join(accounts, ", ")),
			PostID: postRef(postID),
		}, now.Add(-renotifyInterval))
		if !sent {
			continue
		}
		for _, row := range group {
			report.add(&RemediatedItem{PostID: postID, AccountID: row.Account.ID, Action: ActionAuthorNotified})
		}
	}
	return report, nil
}

// teamApprover returns the first owner, else the first manager, of the team.
func (s *edgeCaseService) teamApprover(ctx context.Context, teamID int64) (*models.TeamMember, error) {
	members, err := s.users.ListTeamMembersByRole(ctx, teamID, models.TeamRoleOwner, models.TeamRoleManager)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members[0], nil
}
