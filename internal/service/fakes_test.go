package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/publisher"
)

var errDBDown = errors.New("connection refused")

type fakePostRepo struct {
	mu      sync.Mutex
	posts   map[int64]*models.Post
	overdue map[string][]*models.OverdueApproval
	expired []*models.PostWithAccount
	getErr  error
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{posts: map[int64]*models.Post{}, overdue: map[string][]*models.OverdueApproval{}}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) get(id int64) models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.posts[id]
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) due(now time.Time) []*models.Post {
	var due []*models.Post
	for _, p := range r.posts {
		if p.Status == models.PostStatusScheduled && !p.ScheduledTime.After(now) {
			cp := *p
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledTime.Before(due[j].ScheduledTime) })
	return due
}

func (r *fakePostRepo) CountDue(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.due(now)), nil
}

func (r *fakePostRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := r.due(now)
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakePostRepo) UpdatePostStatus(ctx context.Context, status string, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[postID].Status = status
	return nil
}

func (r *fakePostRepo) SetPublished(ctx context.Context, postID int64, status string, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[postID].Status = status
	r.posts[postID].PublishedAt = &publishedAt
	return nil
}

func (r *fakePostRepo) Reschedule(ctx context.Context, postID int64, scheduledTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[postID].ScheduledTime = scheduledTime
	return nil
}

func (r *fakePostRepo) ListOverdueByApproval(ctx context.Context, now time.Time, approvalStatus string) ([]*models.OverdueApproval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overdue[approvalStatus], nil
}

func (r *fakePostRepo) ListPendingWithExpiredAccounts(ctx context.Context, now time.Time) ([]*models.PostWithAccount, error) {
	return r.expired, nil
}

type linkKey struct{ postID, accountID int64 }

type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[linkKey]*models.PostAccountLink
}

func newFakeLinkRepo(links ...*models.PostAccountLink) *fakeLinkRepo {
	r := &fakeLinkRepo{links: map[linkKey]*models.PostAccountLink{}}
	for _, l := range links {
		r.links[linkKey{l.PostID, l.AccountID}] = l
	}
	return r
}

func (r *fakeLinkRepo) get(postID, accountID int64) models.PostAccountLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.links[linkKey{postID, accountID}]
}

func (r *fakeLinkRepo) GetByID(ctx context.Context, postID, accountID int64) (*models.PostAccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[linkKey{postID, accountID}]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLinkRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostAccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostAccountLink
	for k, l := range r.links {
		if k.postID == postID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (r *fakeLinkRepo) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.PostAccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostAccountLink
	for _, l := range r.links {
		if l.Status == models.LinkStatusPublished && l.PublishedAt != nil && !l.PublishedAt.Before(since) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (r *fakeLinkRepo) MarkPublished(ctx context.Context, postID, accountID int64, platformPostID string, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.links[linkKey{postID, accountID}]
	l.Status = models.LinkStatusPublished
	l.PlatformPostID = platformPostID
	l.PublishedAt = &publishedAt
	l.ErrorMessage = ""
	return nil
}

func (r *fakeLinkRepo) MarkFailed(ctx context.Context, postID, accountID int64, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[linkKey{postID, accountID}]
	if !ok || l.Status == models.LinkStatusPublished {
		return nil
	}
	l.Status = models.LinkStatusFailed
	l.PlatformPostID = ""
	l.ErrorMessage = errorMessage
	return nil
}

type fakeMediaRepo struct {
	media map[int64][]*models.PostMedia
}

func (r *fakeMediaRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	if r == nil {
		return nil, nil
	}
	return r.media[postID], nil
}

type fakeAccountRepo struct {
	mu        sync.Mutex
	accounts  map[int64]*models.SocialAccount
	expiring  []*models.SocialAccount
	tokens    map[int64]*models.SocialAccount
	statusSet map[int64]string
}

func newFakeAccountRepo(accounts ...*models.SocialAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{
		accounts:  map[int64]*models.SocialAccount{},
		tokens:    map[int64]*models.SocialAccount{},
		statusSet: map[int64]string{},
	}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	return r.expiring, nil
}

func (r *fakeAccountRepo) SetToken(ctx context.Context, id int64, oldAccessToken string, sa *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[id] = sa
	return nil
}

func (r *fakeAccountRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusSet[id] = status
	return nil
}

type fakeApprovalRepo struct {
	mu          sync.Mutex
	instances   map[int64]*models.ApprovalInstance
	byPost      map[int64][]*models.ApprovalInstance
	stuck       []*models.ApprovalInstance
	pending     map[int64][]*models.ApprovalAssignment
	orphaned    []*models.ApprovalAssignment
	created     []*models.ApprovalAssignment
	reassigned  map[int64]int64
	statusByID  map[int64]string
	listPostErr error
	stuckErr    error
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{
		instances:  map[int64]*models.ApprovalInstance{},
		byPost:     map[int64][]*models.ApprovalInstance{},
		pending:    map[int64][]*models.ApprovalAssignment{},
		reassigned: map[int64]int64{},
		statusByID: map[int64]string{},
	}
}

func (r *fakeApprovalRepo) addInstance(ai *models.ApprovalInstance) {
	r.instances[ai.ID] = ai
	r.byPost[ai.PostID] = append(r.byPost[ai.PostID], ai)
}

func (r *fakeApprovalRepo) GetInstanceByID(ctx context.Context, id int64) (*models.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[id], nil
}

func (r *fakeApprovalRepo) ListInstancesByPostID(ctx context.Context, postID int64) ([]*models.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listPostErr != nil {
		return nil, r.listPostErr
	}
	return r.byPost[postID], nil
}

func (r *fakeApprovalRepo) ListStuckInstances(ctx context.Context, createdBefore time.Time) ([]*models.ApprovalInstance, error) {
	if r.stuckErr != nil {
		return nil, r.stuckErr
	}
	return r.stuck, nil
}

func (r *fakeApprovalRepo) UpdateInstanceStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusByID[id] = status
	return nil
}

func (r *fakeApprovalRepo) ListPendingAssignments(ctx context.Context, instanceID int64) ([]*models.ApprovalAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[instanceID], nil
}

func (r *fakeApprovalRepo) ListOrphanedAssignments(ctx context.Context) ([]*models.ApprovalAssignment, error) {
	return r.orphaned, nil
}

func (r *fakeApprovalRepo) CreateAssignment(ctx context.Context, a *models.ApprovalAssignment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, a)
	return int64(100 + len(r.created)), nil
}

func (r *fakeApprovalRepo) ReassignAssignment(ctx context.Context, id, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reassigned[id] = userID
	return nil
}

type fakeUserRepo struct {
	members map[int64][]*models.TeamMember
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int64) (*models.User, bool, error) {
	return &models.User{ID: id}, true, nil
}

func (r *fakeUserRepo) ListTeamMembersByRole(ctx context.Context, teamID int64, roles ...string) ([]*models.TeamMember, error) {
	return r.members[teamID], nil
}

// fakeNotifier records notifications in memory.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, notification *models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

// NotifyOnce treats every recorded notification as recent.
func (n *fakeNotifier) NotifyOnce(ctx context.Context, notification *models.Notification, since time.Time) bool {
	n.mu.Lock()
	for _, s := range n.sent {
		if s.UserID == notification.UserID && s.Kind == notification.Kind && samePost(s.PostID, notification.PostID) {
			n.mu.Unlock()
			return false
		}
	}
	n.mu.Unlock()
	n.Notify(ctx, notification)
	return true
}

func samePost(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []string
	for _, s := range n.sent {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

type fakePublisher struct {
	platform models.Platform
	calls    int32
	publish  func(ctx context.Context, account *models.SocialAccount, content publisher.Content) (string, error)
}

func (p *fakePublisher) Platform() models.Platform { return p.platform }

func (p *fakePublisher) Publish(ctx context.Context, account *models.SocialAccount, content publisher.Content) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.publish(ctx, account, content)
}

func (p *fakePublisher) ValidateToken(ctx context.Context, account *models.SocialAccount) bool {
	return !account.Expired(time.Now())
}

func (p *fakePublisher) callCount() int {
	return int(atomic.LoadInt32(&p.calls))
}

func returning(id string) func(context.Context, *models.SocialAccount, publisher.Content) (string, error) {
	return func(context.Context, *models.SocialAccount, publisher.Content) (string, error) {
		return id, nil
	}
}
