package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := config.LoadConfig()
	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer closeDB(db)

	if err := db.PingContext(ctx); err != nil {
		fatal("database is unreachable", err)
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	postAccountRepo := repository.NewPostAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	postMetricsRepo := repository.NewPostMetricsRepository(db)
	taskLogRepo := repository.NewTaskLogRepository(db)

	registry := publisher.NewRegistry(
		publisher.NewFacebookPublisher(publisher.Options{
			SecretKey:    cfg.SecretKey,
			GraphVersion: cfg.FacebookGraphVersion,
		}),
		publisher.NewInstagramPublisher(publisher.Options{
			SecretKey:    cfg.SecretKey,
			ClientID:     cfg.InstagramClientID,
			ClientSecret: cfg.InstagramClientSecret,
			GraphVersion: cfg.FacebookGraphVersion,
		}),
		publisher.NewTiktokPublisher(publisher.Options{
			SecretKey:    cfg.SecretKey,
			ClientID:     cfg.TiktokClientKey,
			ClientSecret: cfg.TiktokClientSecret,
		}),
		publisher.NewYouTubePublisher(publisher.Options{
			SecretKey:    cfg.SecretKey,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		}),
	)
	slog.Info("publishers registered", "platforms", registry.List())

	notifier := service.NewNotificationService(notificationRepo, nil)
	dispatcher := service.NewPostPublisherService(postRepo, postAccountRepo, postMediaRepo, socialAccountRepo, registry, service.NewGuard(), nil)
	selector := service.NewDuePostSelector(postRepo, approvalRepo, nil)

	var archiver service.Archiver
	r2, err := service.NewR2Service(ctx, cfg.R2)
	if err != nil {
		fatal("failed to configure R2 archive", err)
	}
	if r2 != nil {
		archiver = r2
	}

	var rdb redis.UniversalClient
	if cfg.RedisURI != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisURI, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		rdb = client
	}
	healthService := service.NewHealthService(db, rdb, nil)

	services := jobs.Services{
		Scheduled:  service.NewScheduledPostService(selector, dispatcher, nil),
		Dispatcher: dispatcher,
		Tokens:     service.NewTokenService(socialAccountRepo, registry, notifier, cfg.SecretKey, nil),
		Health:     healthService,
		Cleanup:    service.NewLogCleanupService(taskLogRepo, archiver, nil),
		Sync:       service.NewSyncService(postAccountRepo, socialAccountRepo, postMetricsRepo, registry, nil),
		EdgeCases:  service.NewEdgeCaseService(postRepo, approvalRepo, userRepo, dispatcher, notifier, nil),
	}

	manager := jobs.NewManager(newBackend(cfg), services, taskLogRepo, jobConfig(cfg.Scheduler), nil)
	if err := manager.Initialize(ctx); err != nil {
		fatal("failed to initialize job scheduler", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	health := handlers.NewHealthHandler(healthService)
	app.Get("/api/health", health.Health)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	jobHandler := handlers.NewJobHandler(manager)
	api.Get("/jobs/status", jobHandler.Status)
	api.Post("/jobs/:name/trigger", jobHandler.Trigger)
	api.Post("/jobs/:name/pause", jobHandler.Pause)
	api.Post("/jobs/:name/resume", jobHandler.Resume)

	post := handlers.NewPostHandler(dispatcher)
	api.Post("/posts/:id/publish", post.PublishPost)

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			fatal("failed to start server", err)
		}
	}()
	slog.Info("server is running", "addr", cfg.HTTPAddr, "scheduler", cfg.Scheduler.Backend)

	gracefulShutdown(app, manager)
}

func newBackend(cfg *config.Config) queue.Backend {
	s := cfg.Scheduler
	switch s.Backend {
	case "timer":
		return queue.NewCronBackend(queue.CronConfig{
			Concurrency: s.Concurrency,
			Queues:      jobs.QueuePriorities(),
			Location:    s.Location(),
		})
	case "queue":
		return queue.NewAsynqBackend(queue.AsynqConfig{
			Redis:       queue.RedisConfig{Addr: cfg.RedisURI, Password: cfg.RedisPassword, DB: cfg.RedisDB},
			Concurrency: s.Concurrency,
			Queues:      jobs.QueuePriorities(),
			Location:    s.Location(),
		})
	default:
		fatal("unknown scheduler backend", fmt.Errorf("SCHEDULER_BACKEND=%q, want queue or timer", s.Backend))
		return nil
	}
}

func jobConfig(s config.Scheduler) jobs.Config {
	jc := jobs.Config{
		Enabled:          map[jobs.JobName]bool{},
		Cron:             map[jobs.JobName]string{},
		DueBatchSize:     s.DueBatchSize,
		LogRetentionDays: s.LogRetentionDays,
		JobRetention:     s.JobRetention,
	}
	for name, enabled := range s.JobEnabled {
		jc.Enabled[jobs.JobName(name)] = enabled
	}
	for name, expr := range s.JobCron {
		jc.Cron[jobs.JobName(name)] = expr
	}
	return jc
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, manager *jobs.Manager) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	if err := app.Shutdown(); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		slog.Error("failed to stop job scheduler", "error", err)
	}

	slog.Info("server shutdown complete")
}
