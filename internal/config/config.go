package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	DefaultMaxRetry  = 3
	DefaultBatchSize = 50
)

type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	MigrationsDir string
	MaxRetry      int
	BatchSize     int
}

func Load() Config {
	cfg := Config{
		Port:          envOrDefault("TASK_SYNC_PORT", "8090"),
		LogLevel:      envOrDefault("TASK_SYNC_LOG_LEVEL", "info"),
		DatabaseURL:   envOrDefault("TASK_SYNC_DATABASE_URL", "file:tasksync.db"),
		MigrationsDir: envOrDefault("TASK_SYNC_MIGRATIONS_DIR", "migrations"),
		MaxRetry:      IntOrDefault(os.Getenv("TASK_SYNC_MAX_RETRY"), DefaultMaxRetry),
		BatchSize:     IntOrDefault(os.Getenv("TASK_SYNC_BATCH_SIZE"), DefaultBatchSize),
	}
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		cfg.Port = p
	}
	return cfg
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func IntOrDefault(v string, fallback int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
		return i
	}
	return fallback
}
