package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// JobNames lists the jobs that accept JOB_<NAME>_ENABLED and JOB_<NAME>_CRON overrides.
var JobNames = []string{
	"publish_due_posts",
	"check_expired_tokens",
	"system_health_check",
	"cleanup_old_logs",
	"incremental_sync",
	"daily_sync",
	"collect_historical_data",
	"handle_edge_cases",
}

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Scheduler struct {
	// Backend is "queue" (asynq on Redis) or "timer" (in-process cron).
	Backend          string
	Concurrency      int
	Timezone         string
	DueBatchSize     int
	LogRetentionDays int
	JobRetention     time.Duration
	// JobEnabled and JobCron only hold keys that were set in the environment.
	JobEnabled map[string]bool
	JobCron    map[string]string
}

func (s Scheduler) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		slog.Warn("unknown scheduler timezone, using UTC", "timezone", s.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

type Config struct {
	HTTPAddr              string
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string
	TiktokClientKey       string
	TiktokClientSecret    string
	TiktokRedirectURI     string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	FacebookGraphVersion  string
	PostgresURI           string
	RedisURI              string
	RedisPassword         string
	RedisDB               int
	R2                    R2
	SecretKey             string
	CookieName            string
	Scheduler             Scheduler
}

func LoadConfig() *Config {
	return &Config{
		HTTPAddr:              getEnv("HTTP_ADDR", ":3000"),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
		TiktokRedirectURI:     getEnv("TIKTOK_REDIRECT_URI", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", ""),
		FacebookGraphVersion:  getEnv("FACEBOOK_GRAPH_VERSION", "v21.0"),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getInt("REDIS_DB", 0),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postflow_token"),
		Scheduler:  loadScheduler(),
	}
}

func loadScheduler() Scheduler {
	s := Scheduler{
		Backend:          strings.ToLower(getEnv("SCHEDULER_BACKEND", "queue")),
		Concurrency:      getInt("SCHEDULER_CONCURRENCY", 10),
		Timezone:         getEnv("SCHEDULER_TIMEZONE", "UTC"),
		DueBatchSize:     getInt("DUE_POSTS_BATCH_SIZE", 50),
		LogRetentionDays: getInt("LOG_RETENTION_DAYS", 30),
		JobRetention:     getDuration("JOB_RETENTION", 24*time.Hour),
		JobEnabled:       map[string]bool{},
		JobCron:          map[string]string{},
	}

	for _, name := range JobNames {
		prefix := "JOB_" + strings.ToUpper(name)
		if v, ok := lookupBool(prefix + "_ENABLED"); ok {
			s.JobEnabled[name] = v
		}
		if v := getEnv(prefix+"_CRON", ""); v != "" {
			s.JobCron[name] = v
		}
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}

func lookupBool(key string) (bool, bool) {
	value := os.Getenv(key)
	if value == "" {
		return false, false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("invalid boolean in environment, ignoring", "key", key, "value", value)
		return false, false
	}
	return b, true
}
