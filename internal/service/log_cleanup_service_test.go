package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTaskLogRepo struct {
	mock.Mock
}

func (m *mockTaskLogRepo) Create(ctx context.Context, tl *models.TaskLog) (int64, error) {
	args := m.Called(ctx, tl)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTaskLogRepo) ListByWindow(ctx context.Context, from, to time.Time) ([]*models.TaskLog, error) {
	args := m.Called(ctx, from, to)
	logs, _ := args.Get(0).([]*models.TaskLog)
	return logs, args.Error(1)
}

func (m *mockTaskLogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	return m.Called(ctx, key, body, contentType).Error(0)
}

func newCleanup(logs *mockTaskLogRepo, archiver Archiver, now time.Time) *logCleanupService {
	svc := NewLogCleanupService(logs, archiver, nil).(*logCleanupService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestCleanupOldLogs_ArchivesThenDeletes(t *testing.T) {
	now := time.Date(2026, 5, 31, 3, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -7)
	entries := []*models.TaskLog{{ID: 1, Name: "publish_due_posts", Status: models.TaskStatusSuccess}}

	logs := &mockTaskLogRepo{}
	logs.On("ListByWindow", mock.Anything, time.Time{}, cutoff).Return(entries, nil)
	logs.On("DeleteBefore", mock.Anything, cutoff).Return(int64(1), nil)

	archiver := &mockArchiver{}
	body, _ := json.Marshal(entries)
	archiver.On("Upload", mock.Anything, "task-logs/20260524T030000Z.json", body, "application/json").Return(nil)

	report, err := newCleanup(logs, archiver, now).CleanupOldLogs(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, &CleanupReport{Cutoff: cutoff, Archived: 1, ArchiveKey: "task-logs/20260524T030000Z.json", Deleted: 1}, report)
	logs.AssertExpectations(t)
	archiver.AssertExpectations(t)
}

func TestCleanupOldLogs_ArchiveFailureKeepsLogs(t *testing.T) {
	now := time.Date(2026, 5, 31, 3, 0, 0, 0, time.UTC)

	logs := &mockTaskLogRepo{}
	logs.On("ListByWindow", mock.Anything, mock.Anything, mock.Anything).Return([]*models.TaskLog{{ID: 1}}, nil)

	archiver := &mockArchiver{}
	archiver.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errDBDown)

	_, err := newCleanup(logs, archiver, now).CleanupOldLogs(context.Background(), 7)
	require.ErrorIs(t, err, errDBDown)
	logs.AssertNotCalled(t, "DeleteBefore", mock.Anything, mock.Anything)
}

func TestCleanupOldLogs_NoArchiverDefaultRetention(t *testing.T) {
	now := time.Date(2026, 5, 31, 3, 0, 0, 0, time.UTC)

	logs := &mockTaskLogRepo{}
	logs.On("DeleteBefore", mock.Anything, now.AddDate(0, 0, -DefaultLogRetentionDays)).Return(int64(12), nil)

	report, err := newCleanup(logs, nil, now).CleanupOldLogs(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12), report.Deleted)
	logs.AssertNotCalled(t, "ListByWindow", mock.Anything, mock.Anything, mock.Anything)
}
