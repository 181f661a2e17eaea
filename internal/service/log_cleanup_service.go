package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/repository"
)

const DefaultLogRetentionDays = 30

type CleanupReport struct {
	Cutoff     time.Time `json:"cutoff"`
	Archived   int       `json:"archived"`
	ArchiveKey string    `json:"archive_key,omitempty"`
	Deleted    int64     `json:"deleted"`
}

type LogCleanupService interface {
	CleanupOldLogs(ctx context.Context, retentionDays int) (*CleanupReport, error)
}

type logCleanupService struct {
	logs     repository.TaskLogRepository
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

// NewLogCleanupService prunes task logs; archiver may be nil to delete without exporting.
func NewLogCleanupService(logs repository.TaskLogRepository, archiver Archiver, logger *slog.Logger) LogCleanupService {
	return &logCleanupService{
		logs:     logs,
		archiver: archiver,
		logger:   resolveLogger(logger),
		now:      time.Now,
	}
}

// CleanupOldLogs exports entries older than the retention window and then deletes them.
// Nothing is deleted when the export fails.
func (s *logCleanupService) CleanupOldLogs(ctx context.Context, retentionDays int) (*CleanupReport, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultLogRetentionDays
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	report := &CleanupReport{Cutoff: cutoff}

	if s.archiver != nil {
		entries, err := s.logs.ListByWindow(ctx, time.Time{}, cutoff)
		if err != nil {
			return nil, fmt.Errorf("list task logs: %w", err)
		}
		if len(entries) > 0 {
			body, err := json.Marshal(entries)
			if err != nil {
				return nil, fmt.Errorf("encode task logs: %w", err)
			}
			key := fmt.Sprintf("task-logs/%s.json", cutoff.Format("20060102T150405Z"))
			if err := s.archiver.Upload(ctx, key, body, "application/json"); err != nil {
				return nil, fmt.Errorf("archive task logs: %w", err)
			}
			report.Archived = len(entries)
			report.ArchiveKey = key
		}
	}

	deleted, err := s.logs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete task logs: %w", err)
	}
	report.Deleted = deleted

	s.logger.Info("task logs cleaned up", "cutoff", cutoff, "archived", report.Archived, "deleted", deleted)
	return report, nil
}
