package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/redis/go-redis/v9"
)

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"

	healthCheckTimeout = 5 * time.Second
)

type HealthService interface {
	Check(ctx context.Context) *transfer.HealthResponse
}

type healthService struct {
	db     *sql.DB
	redis  redis.UniversalClient
	logger *slog.Logger
}

// NewHealthService pings Postgres and, when rdb is non-nil, Redis. A Redis outage degrades the
// service; a database outage makes it unhealthy.
func NewHealthService(db *sql.DB, rdb redis.UniversalClient, logger *slog.Logger) HealthService {
	return &healthService{db: db, redis: rdb, logger: resolveLogger(logger)}
}

func (s *healthService) Check(ctx context.Context) *transfer.HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	resp := &transfer.HealthResponse{
		Status:    HealthHealthy,
		Checks:    map[string]string{},
		CheckedAt: time.Now().UTC(),
	}

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("database ping failed", "error", err)
		resp.Checks["database"] = err.Error()
		resp.Status = HealthUnhealthy
	} else {
		resp.Checks["database"] = "ok"
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn("redis ping failed", "error", err)
			resp.Checks["redis"] = err.Error()
			if resp.Status == HealthHealthy {
				resp.Status = HealthDegraded
			}
		} else {
			resp.Checks["redis"] = "ok"
		}
	}

	return resp
}
